package jigsaw

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CellSize is the extent of one grid cell in degrees.
type CellSize struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultCellSize is roughly 150 m x 150 m at mid latitudes.
var DefaultCellSize = CellSize{Lat: 0.0014, Lng: 0.002}

// DefaultMinSamples is the count a cell has to exceed before it is drawn.
const DefaultMinSamples = 4

// Cell identifies a grid square by row (latitude) and column (longitude).
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid buckets sample values into fixed-size cells anchored at snapped
// minimum coordinates. A Grid lives for one batch only.
type Grid struct {
	Size   CellSize
	LatMin float64
	LatMax float64
	LngMin float64
	LngMax float64
	Rows   int
	Cols   int

	cells map[Cell][]float64
}

// NewGrid computes snapped bounds and dimensions for the given samples.
// ok is false when there is nothing to bin.
//
// Snapping divides by the cell size and truncates toward zero, so for
// negative coordinates the minimum moves toward the equator/meridian rather
// than outward. CellOf uses the same truncation, which keeps every sample at
// a non-negative index.
func NewGrid(samples []Sample, size CellSize) (*Grid, bool) {
	box, ok := PathBounds(samples)
	if !ok || size.Lat <= 0 || size.Lng <= 0 {
		return nil, false
	}
	halfLat, halfLng := size.Lat/2, size.Lng/2

	g := &Grid{
		Size:   size,
		LatMin: math.Trunc((box.SouthWest.Lat-halfLat)/size.Lat) * size.Lat,
		LatMax: math.Trunc((box.NorthEast.Lat+halfLat)/size.Lat) * size.Lat,
		LngMin: math.Trunc((box.SouthWest.Lng-halfLng)/size.Lng) * size.Lng,
		LngMax: math.Trunc((box.NorthEast.Lng+halfLng)/size.Lng) * size.Lng,
		cells:  make(map[Cell][]float64),
	}
	g.Rows = int(math.Ceil((g.LatMax-g.LatMin)/size.Lat)) + 2
	g.Cols = int(math.Ceil((g.LngMax-g.LngMin)/size.Lng)) + 2
	return g, true
}

// Build creates the grid for samples and bins every sample that has a value.
func Build(samples []Sample, size CellSize) (*Grid, bool) {
	g, ok := NewGrid(samples, size)
	if !ok {
		return nil, false
	}
	for _, s := range samples {
		g.Add(s)
	}
	return g, true
}

// CellOf maps a position to its cell using truncating division.
func (g *Grid) CellOf(p LatLng) Cell {
	return Cell{
		Row: int((p.Lat - g.LatMin) / g.Size.Lat),
		Col: int((p.Lng - g.LngMin) / g.Size.Lng),
	}
}

// CenterOf maps a cell back to the position of its center.
func (g *Grid) CenterOf(c Cell) LatLng {
	return LatLng{
		Lat: g.Size.Lat/2 + g.LatMin + float64(c.Row)*g.Size.Lat,
		Lng: g.Size.Lng/2 + g.LngMin + float64(c.Col)*g.Size.Lng,
	}
}

// BoundsOf returns the rectangle covered by a cell.
func (g *Grid) BoundsOf(c Cell) Box {
	center := g.CenterOf(c)
	sw := LatLng{Lat: center.Lat - g.Size.Lat/2, Lng: center.Lng - g.Size.Lng/2}
	return Box{
		SouthWest: sw,
		NorthEast: LatLng{Lat: sw.Lat + g.Size.Lat, Lng: sw.Lng + g.Size.Lng},
	}
}

// Contains reports whether c is inside the grid dimensions.
func (g *Grid) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Rows && c.Col >= 0 && c.Col < g.Cols
}

// Add appends the sample value to its cell, creating the cell on first use.
// Samples without a value or outside the grid are ignored.
func (g *Grid) Add(s Sample) bool {
	if !s.ValueValid {
		return false
	}
	c := g.CellOf(s.Position)
	if !g.Contains(c) {
		return false
	}
	g.cells[c] = append(g.cells[c], s.Value)
	return true
}

// Count returns how many values landed in c.
func (g *Grid) Count(c Cell) int { return len(g.cells[c]) }

// Cells lists the non-empty cells in row-major order.
func (g *Grid) Cells() []Cell {
	out := make([]Cell, 0, len(g.cells))
	for c := range g.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// Region is one drawable jigsaw piece.
type Region struct {
	Cell   Cell    `json:"cell"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Bounds Box     `json:"bounds"`
}

// Regions averages every non-empty cell and returns the ones holding strictly
// more than minSamples values.
func (g *Grid) Regions(minSamples int) []Region {
	var out []Region
	for _, c := range g.Cells() {
		values := g.cells[c]
		if len(values) <= minSamples {
			continue
		}
		out = append(out, Region{
			Cell:   c,
			Count:  len(values),
			Mean:   stat.Mean(values, nil),
			Bounds: g.BoundsOf(c),
		})
	}
	return out
}
