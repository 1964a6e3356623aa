package scene

import (
	"jigsaw-map/pkg/jigsaw"
	"jigsaw-map/pkg/panel"
)

// Snapshot is the frozen state of a panel map. Features follow GeoJSON
// (coordinates are [lng, lat]).
type Snapshot struct {
	PanelID         string            `json:"panelID"`
	Version         uint64            `json:"version"`
	Created         bool              `json:"created"`
	MapOptions      panel.MapOptions  `json:"mapOptions"`
	Control         []string          `json:"control"`
	Tiles           []Tile            `json:"tiles"`
	View            *View             `json:"view,omitempty"`
	Fit             *jigsaw.Box       `json:"fit,omitempty"`
	ScrollWheelZoom bool              `json:"scrollWheelZoom"`
	SizeEpoch       int               `json:"sizeEpoch"`
	Features        FeatureCollection `json:"features"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         int            `json:"id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a GeoJSON geometry; Coordinates depends on Type.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

func emptyCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

func lngLat(p jigsaw.LatLng) [2]float64 { return [2]float64{p.Lng, p.Lat} }

// Rectangles returns the drawn jigsaw regions in drawing order.
func (s *Snapshot) Rectangles() []jigsaw.Region {
	var out []jigsaw.Region
	for _, f := range s.Features.Features {
		if f.Properties["kind"] != KindRectangle {
			continue
		}
		if r, ok := f.Properties["region"].(jigsaw.Region); ok {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many features of kind are drawn.
func (s *Snapshot) Count(kind string) int {
	n := 0
	for _, f := range s.Features.Features {
		if f.Properties["kind"] == kind {
			n++
		}
	}
	return n
}

func (s *Scene) snapshot() *Snapshot {
	snap := &Snapshot{
		PanelID:         s.panelID,
		Version:         s.version,
		Created:         s.created,
		MapOptions:      s.mapOpts,
		Control:         append([]string(nil), s.control...),
		Tiles:           append([]Tile(nil), s.tiles...),
		ScrollWheelZoom: s.scroll,
		SizeEpoch:       s.sizeEpoch,
		Features:        emptyCollection(),
	}
	if s.view != nil {
		v := *s.view
		snap.View = &v
	}
	if s.fit != nil {
		b := *s.fit
		snap.Fit = &b
	}
	for _, v := range s.vectors {
		snap.Features.Features = append(snap.Features.Features, v.feature())
	}
	return snap
}

func (v *vector) feature() Feature {
	f := Feature{
		Type: "Feature",
		ID:   int(v.id),
		Properties: map[string]any{
			"kind":  v.kind,
			"style": v.style,
		},
	}
	switch v.kind {
	case KindPath:
		coords := make([][2]float64, len(v.points))
		for i, p := range v.points {
			coords[i] = lngLat(p)
		}
		f.Geometry = Geometry{Type: "LineString", Coordinates: coords}
	case KindMarker:
		f.Geometry = Geometry{Type: "Point", Coordinates: lngLat(v.points[0])}
	case KindRectangle:
		sw, ne := v.region.Bounds.SouthWest, v.region.Bounds.NorthEast
		ring := [][2]float64{
			{sw.Lng, sw.Lat},
			{ne.Lng, sw.Lat},
			{ne.Lng, ne.Lat},
			{sw.Lng, ne.Lat},
			{sw.Lng, sw.Lat},
		}
		f.Geometry = Geometry{Type: "Polygon", Coordinates: [][][2]float64{ring}}
		f.Properties["region"] = v.region
		f.Properties["mean"] = v.region.Mean
		f.Properties["count"] = v.region.Count
	}
	return f
}
