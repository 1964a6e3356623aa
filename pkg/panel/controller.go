// Package panel hosts the jigsaw map panel: it listens to lifecycle and bus
// events, runs the batch through pkg/jigsaw and draws the result through a
// MapWidget.
package panel

import (
	"context"
	"time"

	"jigsaw-map/pkg/jigsaw"
)

var (
	worldCenter = jigsaw.LatLng{}
	worldZoom   = 1.0

	regionStyle = Style{Color: "red", FillOpacity: 0.8, Weight: 0}
)

// Stats describes the outcome of the last data pass.
type Stats struct {
	Samples int `json:"samples"`
	Cells   int `json:"cells"`
	Regions int `json:"regions"`
}

// Observer is told about data passes and hover lookups. Metrics plug in here.
type Observer interface {
	DataPass(panelID string, st Stats)
	HoverLookup(panelID string, hit bool)
}

// Controller owns the state of one panel instance. Every method must be
// called from a single goroutine, normally the loop of the Events it is
// attached to.
type Controller struct {
	id     string
	opts   Options
	layers Layers
	widget MapWidget
	timeSv TimeService
	obs    Observer

	post     func(name string, payload any)
	debounce *Debouncer

	created       bool
	baseLayer     string
	forcedOverlay string
	coords        []jigsaw.Sample
	polyline      LayerID
	hoverMarker   LayerID
	hoverTarget   *int64
	jigsaw        []LayerID
	regions       []jigsaw.Region
	tabs          []EditorTab
	stats         Stats
}

// NewController builds a controller. Layers are copied so instances never
// share tile layer values.
func NewController(id string, opts Options, layers Layers, widget MapWidget, timeSv TimeService) *Controller {
	opts = opts.WithDefaults()
	if len(layers) == 0 {
		layers = DefaultLayers()
	}
	own := make(Layers, len(layers))
	copy(own, layers)
	return &Controller{
		id:       id,
		opts:     opts,
		layers:   own,
		widget:   widget,
		timeSv:   timeSv,
		debounce: NewDebouncer(opts.ResizeQuiet),
	}
}

// SetObserver installs an observer for data passes and hover lookups.
func (c *Controller) SetObserver(o Observer) { c.obs = o }

// Attach subscribes the controller to every event it handles and routes the
// resize debouncer back through ev so the deferred action runs on the loop.
func (c *Controller) Attach(ev *Events) {
	c.post = func(name string, payload any) {
		_ = ev.Post(context.Background(), name, payload)
	}

	ev.On(EventInitialized, func(any) { c.OnInitialized() })
	ev.On(EventViewModeChanged, func(any) { c.OnViewModeChanged() })
	ev.On(EventInitEditMode, func(any) { c.OnInitEditMode() })
	ev.On(EventTeardown, func(any) { c.OnTeardown() })
	ev.On(EventSizeChanged, func(any) { c.OnSizeChanged() })
	ev.On(EventSizeInvalidate, func(any) { c.invalidateSize() })
	ev.On(EventDataReceived, func(p any) {
		if d, ok := p.(DataEvent); ok {
			c.OnDataReceived(d.Series)
		}
	})
	ev.On(EventSnapshotLoad, func(p any) {
		if d, ok := p.(DataEvent); ok {
			c.OnSnapshotLoad(d.Series)
		}
	})
	ev.On(EventOptionsChanged, func(p any) {
		if o, ok := p.(Options); ok {
			c.UpdateOptions(o)
		}
	})
	ev.On(EventGraphHover, func(p any) {
		if h, ok := p.(HoverEvent); ok {
			c.OnHover(h)
		}
	})
	ev.On(EventGraphHoverClear, func(any) { c.OnHoverClear() })
	ev.On(EventBaseLayerChange, func(p any) {
		if b, ok := p.(BaseLayerEvent); ok {
			c.OnBaseLayerChange(b.Name)
		}
	})
	ev.On(EventBoxZoomEnd, func(p any) {
		if z, ok := p.(ZoomBoxEvent); ok {
			c.OnZoomBox(z.Bounds)
		}
	})
}

// ID returns the panel identifier.
func (c *Controller) ID() string { return c.id }

// Options returns the current options.
func (c *Controller) Options() Options { return c.opts }

// Samples returns the path of the last batch.
func (c *Controller) Samples() []jigsaw.Sample { return c.coords }

// Regions returns the regions drawn for the last batch.
func (c *Controller) Regions() []jigsaw.Region { return c.regions }

// EditorTabs returns the tabs registered so far.
func (c *Controller) EditorTabs() []EditorTab { return c.tabs }

// Stats returns the figures of the last data pass.
func (c *Controller) Stats() Stats { return c.stats }

// OnInitialized renders the empty panel.
func (c *Controller) OnInitialized() {
	c.widget.Render()
}

// OnInitEditMode registers the options editor tab.
func (c *Controller) OnInitEditMode() {
	for _, t := range c.tabs {
		if t.Title == OptionsTab.Title {
			return
		}
	}
	c.tabs = append(c.tabs, OptionsTab)
}

// OnTeardown drops a pending resize.
func (c *Controller) OnTeardown() {
	c.debounce.Cancel()
}

// OnViewModeChanged treats a view mode change as a resize; the host does not
// send a resize in that case even though the panel changed size.
func (c *Controller) OnViewModeChanged() {
	c.OnSizeChanged()
}

// OnSizeChanged schedules a size invalidation once resizing has been quiet
// for the configured period.
func (c *Controller) OnSizeChanged() {
	c.debounce.Trigger(func() {
		if c.post != nil {
			c.post(EventSizeInvalidate, nil)
		}
	})
}

func (c *Controller) invalidateSize() {
	if !c.created {
		return
	}
	c.widget.InvalidateSize(true)
	c.widget.Render()
}

// setupMap creates the map on first use. Later calls bring the existing map
// back to a clean state: path removed and hover marker hidden.
func (c *Controller) setupMap() {
	if c.created {
		if c.polyline != 0 {
			c.widget.RemoveLayer(c.polyline)
			c.polyline = 0
		}
		c.OnHoverClear()
		return
	}

	c.widget.Create(MapOptions{
		ScrollWheelZoom: c.opts.ScrollWheelZoom,
		ZoomSnap:        0.5,
		ZoomDelta:       1,
	})
	c.widget.AddLayerControl(c.layers)
	c.created = true
	c.showBaseLayer(c.opts.DefaultLayer)
}

// showBaseLayer swaps the base tile layer and its forced overlay.
func (c *Controller) showBaseLayer(name string) {
	layer, ok := c.layers.Get(name)
	if !ok {
		return
	}
	if c.baseLayer != "" && c.baseLayer != name {
		c.widget.RemoveTileLayer(c.baseLayer)
	}
	if c.baseLayer != name {
		c.widget.AddTileLayer(layer, layer.ZIndex)
		c.baseLayer = name
	}
	c.applyForcedOverlay(layer)
}

func (c *Controller) applyForcedOverlay(layer TileLayer) {
	if c.forcedOverlay != "" {
		c.widget.RemoveTileLayer(c.forcedOverlay)
		c.forcedOverlay = ""
	}
	if o := layer.ForcedOverlay; o != nil {
		c.widget.AddTileLayer(*o, layer.ZIndex+1)
		c.forcedOverlay = o.Name
	}
}

// OnBaseLayerChange switches the base layer, keeping the forced overlay of
// the new layer on top of it.
func (c *Controller) OnBaseLayerChange(name string) {
	if !c.created {
		return
	}
	c.showBaseLayer(name)
	c.widget.Render()
}

// OnDataReceived ingests a batch and redraws path and jigsaw.
func (c *Controller) OnDataReceived(batch []jigsaw.Series) {
	c.setupMap()
	c.clearJigsaw()

	samples := jigsaw.IngestBatch(batch)
	if len(samples) == 0 {
		// nothing usable: show the whole world
		c.coords = nil
		c.stats = Stats{}
		c.observePass()
		c.widget.SetView(worldCenter, worldZoom)
		c.widget.Render()
		return
	}
	c.coords = samples

	st := Stats{Samples: len(samples)}
	if grid, ok := jigsaw.Build(samples, c.opts.CellSize); ok {
		st.Cells = len(grid.Cells())
		c.regions = grid.Regions(c.opts.MinCellSamples)
		for _, r := range c.regions {
			c.jigsaw = append(c.jigsaw, c.widget.AddRectangle(r, regionStyle))
		}
	}
	st.Regions = len(c.regions)
	c.stats = st
	c.observePass()

	c.addDataToMap()
}

// OnSnapshotLoad handles data restored from a dashboard snapshot.
func (c *Controller) OnSnapshotLoad(batch []jigsaw.Series) {
	c.OnDataReceived(batch)
}

func (c *Controller) observePass() {
	if c.obs != nil {
		c.obs.DataPass(c.id, c.stats)
	}
}

func (c *Controller) clearJigsaw() {
	for _, id := range c.jigsaw {
		c.widget.RemoveLayer(id)
	}
	c.jigsaw = nil
	c.regions = nil
}

func (c *Controller) addDataToMap() {
	path := make([]jigsaw.LatLng, len(c.coords))
	for i, s := range c.coords {
		path[i] = s.Position
	}
	c.polyline = c.widget.AddPolyline(path, Style{Color: c.opts.LineColor, Weight: 3})
	c.ZoomToFit()
}

// ZoomToFit fits the view to the path when auto zoom is on.
func (c *Controller) ZoomToFit() {
	if c.opts.AutoZoom && c.polyline != 0 {
		if box, ok := jigsaw.PathBounds(c.coords); ok {
			c.widget.FitBounds(box)
		}
	}
	c.widget.Render()
}

// OnHover moves the hover marker to the sample nearest the hovered time.
func (c *Controller) OnHover(evt HoverEvent) {
	if len(c.coords) == 0 {
		return
	}
	target := jigsaw.TargetFromX(evt.Pos.X)
	if c.hoverTarget != nil && *c.hoverTarget == target {
		return
	}
	c.hoverTarget = &target

	idx, ok := jigsaw.Locate(c.coords, target)
	if c.obs != nil {
		c.obs.HoverLookup(c.id, ok)
	}
	if !ok {
		return
	}
	at := c.coords[idx].Position
	if c.hoverMarker == 0 {
		c.hoverMarker = c.widget.AddCircleMarker(at, c.markerStyle())
	} else {
		c.widget.MoveMarker(c.hoverMarker, at)
	}
	c.widget.Render()
}

// OnHoverClear hides the hover marker.
func (c *Controller) OnHoverClear() {
	c.hoverTarget = nil
	if c.hoverMarker != 0 {
		c.widget.RemoveLayer(c.hoverMarker)
		c.hoverMarker = 0
		c.widget.Render()
	}
}

func (c *Controller) markerStyle() Style {
	return Style{
		Color:       "white",
		FillColor:   c.opts.PointColor,
		FillOpacity: 1,
		Weight:      2,
		Radius:      7,
	}
}

// OnZoomBox narrows the dashboard time range to the samples inside box.
func (c *Controller) OnZoomBox(box jigsaw.Box) {
	from, to, ok := jigsaw.TimeBounds(c.coords, box)
	if !ok || c.timeSv == nil {
		return
	}
	c.timeSv.SetTime(time.UnixMilli(from).UTC(), time.UnixMilli(to).UTC())
}

// ApplyScrollZoom brings the map's scroll wheel setting in line with the options.
func (c *Controller) ApplyScrollZoom() {
	if !c.created {
		return
	}
	if c.widget.ScrollWheelZoom() != c.opts.ScrollWheelZoom {
		c.widget.SetScrollWheelZoom(c.opts.ScrollWheelZoom)
	}
}

// ApplyDefaultLayer shows the configured default layer and redraws the path.
func (c *Controller) ApplyDefaultLayer() {
	c.setupMap()
	c.showBaseLayer(c.opts.DefaultLayer)
	if len(c.coords) > 0 {
		c.addDataToMap()
		return
	}
	c.widget.Render()
}

// RefreshColors restyles the path and hover marker.
func (c *Controller) RefreshColors() {
	if c.polyline != 0 {
		c.widget.SetStyle(c.polyline, Style{Color: c.opts.LineColor, Weight: 3})
	}
	if c.hoverMarker != 0 {
		c.widget.SetStyle(c.hoverMarker, c.markerStyle())
	}
	c.widget.Render()
}

// UpdateOptions applies edited options, touching only what changed.
// Grid settings take effect with the next batch.
func (c *Controller) UpdateOptions(o Options) {
	o = o.WithDefaults()
	prev := c.opts
	c.opts = o

	if prev.ResizeQuiet != o.ResizeQuiet {
		c.debounce.Cancel()
		c.debounce = NewDebouncer(o.ResizeQuiet)
	}
	if prev.ScrollWheelZoom != o.ScrollWheelZoom {
		c.ApplyScrollZoom()
	}
	if prev.DefaultLayer != o.DefaultLayer {
		c.ApplyDefaultLayer()
	}
	if prev.LineColor != o.LineColor || prev.PointColor != o.PointColor {
		c.RefreshColors()
	}
	if !prev.AutoZoom && o.AutoZoom {
		c.ZoomToFit()
	}
}
