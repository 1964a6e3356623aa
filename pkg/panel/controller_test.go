package panel

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"jigsaw-map/pkg/jigsaw"
)

// fakeWidget records what the controller draws.
type fakeWidget struct {
	created     int
	mapOpts     MapOptions
	control     []string
	tiles       map[string]int
	nextID      LayerID
	polylines   map[LayerID][]jigsaw.LatLng
	rects       map[LayerID]jigsaw.Region
	markers     map[LayerID]jigsaw.LatLng
	styles      map[LayerID]Style
	fit         *jigsaw.Box
	view        *jigsaw.LatLng
	zoom        float64
	scroll      bool
	renders     int
	invalidated chan struct{}
}

func newFakeWidget() *fakeWidget {
	return &fakeWidget{
		tiles:       make(map[string]int),
		polylines:   make(map[LayerID][]jigsaw.LatLng),
		rects:       make(map[LayerID]jigsaw.Region),
		markers:     make(map[LayerID]jigsaw.LatLng),
		styles:      make(map[LayerID]Style),
		invalidated: make(chan struct{}, 8),
	}
}

func (w *fakeWidget) Create(o MapOptions) {
	w.created++
	w.mapOpts = o
	w.scroll = o.ScrollWheelZoom
}
func (w *fakeWidget) AddLayerControl(base Layers)             { w.control = base.Names() }
func (w *fakeWidget) AddTileLayer(l TileLayer, z int)         { w.tiles[l.Name] = z }
func (w *fakeWidget) RemoveTileLayer(name string)             { delete(w.tiles, name) }
func (w *fakeWidget) id() LayerID                             { w.nextID++; return w.nextID }
func (w *fakeWidget) MoveMarker(id LayerID, at jigsaw.LatLng) { w.markers[id] = at }
func (w *fakeWidget) SetStyle(id LayerID, s Style)            { w.styles[id] = s }
func (w *fakeWidget) FitBounds(b jigsaw.Box)                  { w.fit = &b }
func (w *fakeWidget) ScrollWheelZoom() bool                   { return w.scroll }
func (w *fakeWidget) SetScrollWheelZoom(on bool)              { w.scroll = on }
func (w *fakeWidget) Render()                                 { w.renders++ }
func (w *fakeWidget) InvalidateSize(bool)                     { w.invalidated <- struct{}{} }

func (w *fakeWidget) AddPolyline(path []jigsaw.LatLng, s Style) LayerID {
	id := w.id()
	w.polylines[id] = path
	w.styles[id] = s
	return id
}

func (w *fakeWidget) AddRectangle(r jigsaw.Region, s Style) LayerID {
	id := w.id()
	w.rects[id] = r
	return id
}

func (w *fakeWidget) AddCircleMarker(at jigsaw.LatLng, s Style) LayerID {
	id := w.id()
	w.markers[id] = at
	w.styles[id] = s
	return id
}

func (w *fakeWidget) RemoveLayer(id LayerID) {
	delete(w.polylines, id)
	delete(w.rects, id)
	delete(w.markers, id)
	delete(w.styles, id)
}

func (w *fakeWidget) SetView(center jigsaw.LatLng, zoom float64) {
	w.view = &center
	w.zoom = zoom
}

type fakeTime struct {
	from, to time.Time
	calls    int
}

func (f *fakeTime) SetTime(from, to time.Time) {
	f.from, f.to = from, to
	f.calls++
}

// batch builds the three host series from samples.
func batch(samples []jigsaw.Sample) []jigsaw.Series {
	var lat, lon, val jigsaw.Series
	for _, s := range samples {
		lat.Datapoints = append(lat.Datapoints, jigsaw.P(s.Position.Lat, s.Timestamp))
		lon.Datapoints = append(lon.Datapoints, jigsaw.P(s.Position.Lng, s.Timestamp))
		val.Datapoints = append(val.Datapoints, jigsaw.P(s.Value, s.Timestamp))
	}
	return []jigsaw.Series{lat, lon, val}
}

// cluster returns n samples in one cell followed by a short tail.
func cluster(n int, ts0 int64) []jigsaw.Sample {
	var out []jigsaw.Sample
	for i := 0; i < n; i++ {
		out = append(out, jigsaw.Sample{
			Position:  jigsaw.LatLng{Lat: 45.0007, Lng: 7.001},
			Timestamp: ts0 + int64(i)*10,
			Value:     float64(i),
		})
	}
	out = append(out, jigsaw.Sample{Position: jigsaw.LatLng{Lat: 45.01, Lng: 7.02}, Timestamp: ts0 + int64(n)*10, Value: 1})
	return out
}

func newTestController(t *testing.T) (*Controller, *fakeWidget, *fakeTime) {
	t.Helper()
	w := newFakeWidget()
	ft := &fakeTime{}
	return NewController("1", DefaultOptions(), nil, w, ft), w, ft
}

func TestDataReceivedDrawsPathAndJigsaw(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)

	c.OnDataReceived(batch(cluster(6, 1000)))

	if w.created != 1 {
		t.Fatalf("map created %d times", w.created)
	}
	if len(w.rects) != 1 {
		t.Fatalf("got %d rectangles, want 1", len(w.rects))
	}
	if len(w.polylines) != 1 {
		t.Fatalf("got %d polylines, want 1", len(w.polylines))
	}
	for _, path := range w.polylines {
		if len(path) != 7 {
			t.Fatalf("path has %d points, want 7", len(path))
		}
	}
	if w.fit == nil {
		t.Fatal("auto zoom did not fit bounds")
	}
	if _, ok := w.tiles[LayerOpenStreetMap]; !ok {
		t.Fatalf("default layer missing, tiles=%v", w.tiles)
	}
	if diff := cmp.Diff(DefaultLayers().Names(), w.control); diff != "" {
		t.Fatalf("layer control mismatch (-want +got):\n%s", diff)
	}
	if got := c.Stats(); got.Samples != 7 || got.Regions != 1 || got.Cells != 2 {
		t.Fatalf("stats = %+v", got)
	}
}

// TestBatchReplacesJigsaw makes sure the second batch does not leave
// rectangles from the first behind.
func TestBatchReplacesJigsaw(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)

	c.OnDataReceived(batch(cluster(6, 1000)))
	far := cluster(5, 5000)
	for i := range far {
		far[i].Position.Lat += 1
	}
	c.OnDataReceived(batch(far))

	if w.created != 1 {
		t.Fatalf("map created %d times, want once", w.created)
	}
	if len(w.rects) != 1 {
		t.Fatalf("got %d rectangles, want 1", len(w.rects))
	}
	for _, r := range w.rects {
		if r.Bounds.SouthWest.Lat < 45.5 {
			t.Fatalf("rectangle from the first batch survived: %+v", r.Bounds)
		}
	}
	if len(w.polylines) != 1 {
		t.Fatalf("got %d polylines, want 1", len(w.polylines))
	}
}

func TestEmptyBatchResetsView(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)

	c.OnDataReceived(batch(cluster(8, 1000)))
	c.OnHover(Hover(1005))
	c.OnDataReceived(nil)

	if len(w.rects) != 0 || len(w.polylines) != 0 || len(w.markers) != 0 {
		t.Fatalf("leftover layers: rects=%d polylines=%d markers=%d", len(w.rects), len(w.polylines), len(w.markers))
	}
	if w.view == nil || *w.view != (jigsaw.LatLng{}) || w.zoom != 1 {
		t.Fatalf("view = %v zoom %v, want world view", w.view, w.zoom)
	}
	if len(c.Samples()) != 0 {
		t.Fatalf("samples kept after empty batch: %d", len(c.Samples()))
	}
}

func TestHoverMovesMarker(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)

	samples := []jigsaw.Sample{
		{Position: jigsaw.LatLng{Lat: 1, Lng: 1}, Timestamp: 10, Value: 1},
		{Position: jigsaw.LatLng{Lat: 2, Lng: 2}, Timestamp: 20, Value: 1},
		{Position: jigsaw.LatLng{Lat: 3, Lng: 3}, Timestamp: 30, Value: 1},
	}
	c.OnDataReceived(batch(samples))

	c.OnHover(Hover(25.7))
	if len(w.markers) != 1 {
		t.Fatalf("got %d markers, want 1", len(w.markers))
	}
	for _, at := range w.markers {
		if at != samples[1].Position {
			t.Fatalf("marker at %+v, want %+v", at, samples[1].Position)
		}
	}

	renders := w.renders
	c.OnHover(Hover(25.2))
	if w.renders != renders {
		t.Fatal("hover on the same target redrew the marker")
	}

	c.OnHover(Hover(30))
	for _, at := range w.markers {
		if at != samples[2].Position {
			t.Fatalf("marker at %+v, want %+v", at, samples[2].Position)
		}
	}

	c.OnHoverClear()
	if len(w.markers) != 0 {
		t.Fatalf("marker still shown after clear")
	}
}

func TestHoverOnEmptyPathIsNoop(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)

	c.OnHover(Hover(10))
	if w.renders != 0 || len(w.markers) != 0 || w.created != 0 {
		t.Fatalf("hover on empty panel touched the map: %+v", w)
	}
	if c.hoverTarget != nil {
		t.Fatal("hover target set on empty panel")
	}
}

func TestZoomBoxSetsTimeRange(t *testing.T) {
	t.Parallel()
	c, _, ft := newTestController(t)

	c.OnDataReceived(batch(cluster(6, 1_700_000_000_000)))
	box := jigsaw.Box{
		SouthWest: jigsaw.LatLng{Lat: 45, Lng: 7},
		NorthEast: jigsaw.LatLng{Lat: 45.001, Lng: 7.002},
	}
	c.OnZoomBox(box)

	if ft.calls != 1 {
		t.Fatalf("SetTime called %d times", ft.calls)
	}
	if got, want := ft.from, time.UnixMilli(1_700_000_000_000).UTC(); !got.Equal(want) {
		t.Errorf("from = %v, want %v", got, want)
	}
	if got, want := ft.to, time.UnixMilli(1_700_000_000_050).UTC(); !got.Equal(want) {
		t.Errorf("to = %v, want %v", got, want)
	}
	if ft.from.Location() != time.UTC {
		t.Errorf("from not in UTC")
	}

	c.OnZoomBox(jigsaw.Box{SouthWest: jigsaw.LatLng{Lat: -10, Lng: -10}, NorthEast: jigsaw.LatLng{Lat: -9, Lng: -9}})
	if ft.calls != 1 {
		t.Fatal("empty zoom box changed the time range")
	}
}

func TestBaseLayerForcedOverlay(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)
	c.OnDataReceived(nil)

	c.OnBaseLayerChange(LayerSatellite)
	want := map[string]int{LayerSatellite: 1, "Satellite labels": 2}
	if diff := cmp.Diff(want, w.tiles); diff != "" {
		t.Fatalf("tiles mismatch (-want +got):\n%s", diff)
	}

	c.OnBaseLayerChange(LayerOpenTopoMap)
	want = map[string]int{LayerOpenTopoMap: 1}
	if diff := cmp.Diff(want, w.tiles); diff != "" {
		t.Fatalf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestInitEditModeRegistersOptionsTabOnce(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController(t)

	c.OnInitEditMode()
	c.OnInitEditMode()
	if diff := cmp.Diff([]EditorTab{OptionsTab}, c.EditorTabs()); diff != "" {
		t.Fatalf("tabs mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateOptions(t *testing.T) {
	t.Parallel()
	c, w, _ := newTestController(t)
	c.OnDataReceived(batch(cluster(6, 0)))

	o := c.Options()
	o.LineColor = "#00ff00"
	o.ScrollWheelZoom = true
	o.DefaultLayer = LayerOpenTopoMap
	c.UpdateOptions(o)

	if !w.scroll {
		t.Error("scroll wheel zoom not enabled")
	}
	if _, ok := w.tiles[LayerOpenTopoMap]; !ok {
		t.Errorf("default layer not switched: %v", w.tiles)
	}
	if _, ok := w.tiles[LayerOpenStreetMap]; ok {
		t.Errorf("old base layer still shown: %v", w.tiles)
	}
	if len(w.polylines) != 1 {
		t.Fatalf("got %d polylines after layer switch, want 1", len(w.polylines))
	}
	for id := range w.polylines {
		if w.styles[id].Color != "#00ff00" {
			t.Errorf("path color = %q", w.styles[id].Color)
		}
	}
	if len(w.rects) != 1 {
		t.Errorf("jigsaw lost on option change: %d rects", len(w.rects))
	}
}

// TestResizeIsDebounced posts several resize signals through the event loop
// and expects exactly one size invalidation.
func TestResizeIsDebounced(t *testing.T) {
	t.Parallel()
	w := newFakeWidget()
	opts := DefaultOptions()
	opts.ResizeQuiet = 20 * time.Millisecond
	c := NewController("1", opts, nil, w, nil)

	ev := NewEvents(16)
	c.Attach(ev)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ev.Run(ctx)

	if err := ev.Post(ctx, EventDataReceived, DataEvent{}); err != nil {
		t.Fatalf("post: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := ev.Post(ctx, EventSizeChanged, nil); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	if err := ev.Post(ctx, EventViewModeChanged, nil); err != nil {
		t.Fatalf("post: %v", err)
	}

	select {
	case <-w.invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("size was never invalidated")
	}
	select {
	case <-w.invalidated:
		t.Fatal("size invalidated twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTeardownCancelsResize(t *testing.T) {
	t.Parallel()
	w := newFakeWidget()
	opts := DefaultOptions()
	opts.ResizeQuiet = 20 * time.Millisecond
	c := NewController("1", opts, nil, w, nil)
	ev := NewEvents(4)
	c.Attach(ev)

	ev.Dispatch(EventDataReceived, DataEvent{})
	ev.Dispatch(EventSizeChanged, nil)
	ev.Dispatch(EventTeardown, nil)
	if c.debounce.Pending() {
		t.Fatal("resize still pending after teardown")
	}
}

func TestLayersArePerInstance(t *testing.T) {
	t.Parallel()
	a := DefaultLayers()
	b := DefaultLayers()
	a[2].ForcedOverlay.MaxZoom = 3
	if b[2].ForcedOverlay.MaxZoom == 3 {
		t.Fatal("layer sets share overlay values")
	}
}
