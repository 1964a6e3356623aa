// Package scene implements panel.MapWidget by recording what a panel draws.
// Each Render produces an immutable Snapshot that browsers draw with Leaflet.
package scene

import (
	"sync/atomic"

	"jigsaw-map/pkg/jigsaw"
	"jigsaw-map/pkg/panel"
)

// Layer kinds as they appear in feature properties.
const (
	KindPath      = "path"
	KindRectangle = "jigsaw"
	KindMarker    = "hover"
)

type vector struct {
	id     panel.LayerID
	kind   string
	points []jigsaw.LatLng
	region jigsaw.Region
	style  panel.Style
}

// Tile is a tile layer placed on the map.
type Tile struct {
	panel.TileLayer
	Z int `json:"z"`
}

// View is an explicit center/zoom.
type View struct {
	Center jigsaw.LatLng `json:"center"`
	Zoom   float64       `json:"zoom"`
}

// Scene records one panel's map. Mutating methods are called from the panel
// loop only; Current may be called from anywhere.
type Scene struct {
	panelID string
	publish func(*Snapshot)

	version   uint64
	created   bool
	mapOpts   panel.MapOptions
	control   []string
	tiles     []Tile
	nextID    panel.LayerID
	vectors   []*vector
	view      *View
	fit       *jigsaw.Box
	scroll    bool
	sizeEpoch int

	current atomic.Pointer[Snapshot]
}

// New creates a scene for panelID. publish, if not nil, receives every
// rendered snapshot.
func New(panelID string, publish func(*Snapshot)) *Scene {
	s := &Scene{panelID: panelID, publish: publish}
	s.current.Store(&Snapshot{PanelID: panelID, Features: emptyCollection()})
	return s
}

// Current returns the last rendered snapshot.
func (s *Scene) Current() *Snapshot { return s.current.Load() }

// Create records the base map options; it does not render.
func (s *Scene) Create(o panel.MapOptions) {
	s.created = true
	s.mapOpts = o
	s.scroll = o.ScrollWheelZoom
}

// AddLayerControl lists base layer names for the viewer's layer switcher.
func (s *Scene) AddLayerControl(base panel.Layers) { s.control = base.Names() }

// AddTileLayer adds l at z-index z, replacing a tile layer of the same name.
func (s *Scene) AddTileLayer(l panel.TileLayer, z int) {
	s.RemoveTileLayer(l.Name)
	l.ForcedOverlay = nil
	s.tiles = append(s.tiles, Tile{TileLayer: l, Z: z})
}

// RemoveTileLayer drops the tile layer called name, if any.
func (s *Scene) RemoveTileLayer(name string) {
	kept := s.tiles[:0]
	for _, t := range s.tiles {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	s.tiles = kept
}

func (s *Scene) add(v *vector) panel.LayerID {
	s.nextID++
	v.id = s.nextID
	s.vectors = append(s.vectors, v)
	return v.id
}

func (s *Scene) find(id panel.LayerID) *vector {
	for _, v := range s.vectors {
		if v.id == id {
			return v
		}
	}
	return nil
}

// AddPolyline adds a copy of path as a line and returns its id.
func (s *Scene) AddPolyline(path []jigsaw.LatLng, style panel.Style) panel.LayerID {
	pts := make([]jigsaw.LatLng, len(path))
	copy(pts, path)
	return s.add(&vector{kind: KindPath, points: pts, style: style})
}

// AddRectangle adds r as a filled box and returns its id.
func (s *Scene) AddRectangle(r jigsaw.Region, style panel.Style) panel.LayerID {
	return s.add(&vector{kind: KindRectangle, region: r, style: style})
}

// AddCircleMarker adds a marker at at and returns its id.
func (s *Scene) AddCircleMarker(at jigsaw.LatLng, style panel.Style) panel.LayerID {
	return s.add(&vector{kind: KindMarker, points: []jigsaw.LatLng{at}, style: style})
}

// MoveMarker moves marker id to at. Other layer kinds are left alone.
func (s *Scene) MoveMarker(id panel.LayerID, at jigsaw.LatLng) {
	if v := s.find(id); v != nil && v.kind == KindMarker {
		v.points = []jigsaw.LatLng{at}
	}
}

// SetStyle restyles layer id.
func (s *Scene) SetStyle(id panel.LayerID, style panel.Style) {
	if v := s.find(id); v != nil {
		v.style = style
	}
}

// RemoveLayer drops vector layer id; unknown ids are ignored.
func (s *Scene) RemoveLayer(id panel.LayerID) {
	kept := s.vectors[:0]
	for _, v := range s.vectors {
		if v.id != id {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(s.vectors); i++ {
		s.vectors[i] = nil
	}
	s.vectors = kept
}

// FitBounds replaces any explicit view with the box.
func (s *Scene) FitBounds(b jigsaw.Box) {
	s.fit = &b
	s.view = nil
}

// SetView replaces any fitted bounds with the center/zoom.
func (s *Scene) SetView(center jigsaw.LatLng, zoom float64) {
	s.view = &View{Center: center, Zoom: zoom}
	s.fit = nil
}

// InvalidateSize bumps the size epoch so viewers re-measure the map.
func (s *Scene) InvalidateSize(bool) { s.sizeEpoch++ }

// ScrollWheelZoom reports whether wheel zoom is on.
func (s *Scene) ScrollWheelZoom() bool { return s.scroll }

// SetScrollWheelZoom turns wheel zoom on or off.
func (s *Scene) SetScrollWheelZoom(on bool) { s.scroll = on }

// Render freezes the current state into a snapshot and publishes it.
func (s *Scene) Render() {
	s.version++
	snap := s.snapshot()
	s.current.Store(snap)
	if s.publish != nil {
		s.publish(snap)
	}
}
