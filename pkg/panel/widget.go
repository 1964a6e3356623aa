package panel

import (
	"time"

	"jigsaw-map/pkg/jigsaw"
)

// LayerID identifies a vector layer drawn on the map. Zero means "none".
type LayerID int

// Style covers the path, rectangle and marker options the panel uses.
type Style struct {
	Color       string  `json:"color,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
	Weight      float64 `json:"weight"`
	Radius      float64 `json:"radius,omitempty"`
}

// MapOptions are fixed when the map is created.
type MapOptions struct {
	ScrollWheelZoom bool    `json:"scrollWheelZoom"`
	ZoomSnap        float64 `json:"zoomSnap"`
	ZoomDelta       float64 `json:"zoomDelta"`
}

// MapWidget is the mapping library surface the controller draws through.
type MapWidget interface {
	Create(opts MapOptions)
	AddLayerControl(base Layers)
	AddTileLayer(l TileLayer, zIndex int)
	RemoveTileLayer(name string)

	AddPolyline(path []jigsaw.LatLng, style Style) LayerID
	AddRectangle(r jigsaw.Region, style Style) LayerID
	AddCircleMarker(at jigsaw.LatLng, style Style) LayerID
	MoveMarker(id LayerID, at jigsaw.LatLng)
	SetStyle(id LayerID, style Style)
	RemoveLayer(id LayerID)

	FitBounds(b jigsaw.Box)
	SetView(center jigsaw.LatLng, zoom float64)
	InvalidateSize(animate bool)
	ScrollWheelZoom() bool
	SetScrollWheelZoom(enabled bool)

	// Render flushes the accumulated changes to viewers.
	Render()
}

// TimeService sets the dashboard-wide time window.
type TimeService interface {
	SetTime(from, to time.Time)
}

// DataEvent carries one batch of series.
type DataEvent struct {
	Series []jigsaw.Series `json:"series"`
}

// HoverEvent is the global graph-hover broadcast. Pos.X is the hovered
// position on the shared time axis.
type HoverEvent struct {
	Pos struct {
		X float64 `json:"x"`
	} `json:"pos"`
}

// Hover builds a HoverEvent at x.
func Hover(x float64) HoverEvent {
	var e HoverEvent
	e.Pos.X = x
	return e
}

// ZoomBoxEvent is emitted when the user drags a zoom box on the map.
type ZoomBoxEvent struct {
	Bounds jigsaw.Box `json:"bounds"`
}

// BaseLayerEvent is emitted when the base layer is switched.
type BaseLayerEvent struct {
	Name string `json:"name"`
}
