// Package dashboard hosts a set of jigsaw map panels. It plays the part of
// the surrounding dashboard: it owns the global hover bus and the time
// window, feeds panels with data from the store and drives their lifecycle.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jigsaw-map/pkg/database"
	"jigsaw-map/pkg/jigsaw"
	"jigsaw-map/pkg/logger"
	"jigsaw-map/pkg/panel"
	"jigsaw-map/pkg/scene"
	"jigsaw-map/pkg/scenestream"
	"jigsaw-map/pkg/timerange"
)

// ErrUnknownPanel is returned for panel IDs the dashboard does not host.
var ErrUnknownPanel = errors.New("dashboard: unknown panel")

// Store loads the series a panel draws.
type Store interface {
	LoadSeries(ctx context.Context, q database.SeriesQuery) ([]jigsaw.Series, error)
}

// Observer receives panel figures. *metrics.Metrics satisfies it.
type Observer interface {
	panel.Observer
	RefreshError(panelID string)
}

// Deps are the collaborators of a dashboard. Store and Times are required.
type Deps struct {
	Store    Store
	Times    *timerange.Service
	Bus      *scenestream.Bus // nil: snapshots are not streamed
	Observer Observer         // nil: no metrics

	// RefreshSpec is a cron schedule such as "@every 30s"; empty disables
	// auto refresh.
	RefreshSpec string
	// Relative, when set, slides the time window to end at now before each
	// scheduled refresh.
	Relative time.Duration
}

// Panel is one hosted panel instance.
type Panel struct {
	ID     string
	Title  string
	Source string

	ctrl   *panel.Controller
	events *panel.Events
	scene  *scene.Scene

	// refreshing holds one token while a refresh of this panel loads and
	// posts its batch, so batches reach the loop in the order they started.
	refreshing chan struct{}
}

// Info is the listing entry of a panel.
type Info struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Source  string        `json:"source"`
	Options panel.Options `json:"options"`
	Stats   panel.Stats   `json:"stats"`
	Version uint64        `json:"version"`
}

// Dashboard owns every panel and routes host events to them.
type Dashboard struct {
	title  string
	panels []*Panel
	byID   map[string]*Panel
	deps   Deps
	ready  chan struct{}
}

// New builds the panels of cfg. Panels without an ID get a random one.
func New(cfg Config, deps Deps) (*Dashboard, error) {
	if deps.Store == nil || deps.Times == nil {
		return nil, fmt.Errorf("dashboard: store and time service are required")
	}
	if deps.RefreshSpec != "" {
		if _, err := cron.ParseStandard(deps.RefreshSpec); err != nil {
			return nil, fmt.Errorf("refresh schedule %q: %w", deps.RefreshSpec, err)
		}
	}
	if len(cfg.Panels) == 0 {
		cfg = DefaultConfig()
	}

	d := &Dashboard{
		title: cfg.Title,
		byID:  make(map[string]*Panel),
		deps:  deps,
		ready: make(chan struct{}),
	}
	var publish func(*scene.Snapshot)
	if deps.Bus != nil {
		publish = deps.Bus.Publish
	}
	for _, pc := range cfg.Panels {
		id := pc.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("dashboard: duplicate panel id %q", id)
		}

		sc := scene.New(id, publish)
		ev := panel.NewEvents(64)
		ctrl := panel.NewController(id, pc.Options, nil, sc, deps.Times)
		if deps.Observer != nil {
			ctrl.SetObserver(deps.Observer)
		}
		ctrl.Attach(ev)

		p := &Panel{
			ID: id, Title: pc.Title, Source: pc.Source,
			ctrl: ctrl, events: ev, scene: sc,
			refreshing: make(chan struct{}, 1),
		}
		d.panels = append(d.panels, p)
		d.byID[id] = p
	}
	return d, nil
}

// Ready is closed once Run has initialized the panels and drawn their first
// data.
func (d *Dashboard) Ready() <-chan struct{} { return d.ready }

// Title returns the dashboard title.
func (d *Dashboard) Title() string { return d.title }

// Times returns the dashboard time service.
func (d *Dashboard) Times() *timerange.Service { return d.deps.Times }

// Panel looks up a panel.
func (d *Dashboard) Panel(id string) (*Panel, error) {
	p, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPanel, id)
	}
	return p, nil
}

// Snapshot returns the last rendered scene of a panel.
func (d *Dashboard) Snapshot(id string) (*scene.Snapshot, error) {
	p, err := d.Panel(id)
	if err != nil {
		return nil, err
	}
	return p.scene.Current(), nil
}

// Post queues a lifecycle or bus event for one panel.
func (d *Dashboard) Post(ctx context.Context, id, name string, payload any) error {
	p, err := d.Panel(id)
	if err != nil {
		return err
	}
	return p.events.Post(ctx, name, payload)
}

// inspect runs fn on the panel loop.
func (d *Dashboard) inspect(ctx context.Context, id string, fn func(*panel.Controller)) error {
	p, err := d.Panel(id)
	if err != nil {
		return err
	}
	return p.events.Call(ctx, func() { fn(p.ctrl) })
}

// Info describes one panel.
func (d *Dashboard) Info(ctx context.Context, id string) (Info, error) {
	p, err := d.Panel(id)
	if err != nil {
		return Info{}, err
	}
	info := Info{ID: p.ID, Title: p.Title, Source: p.Source}
	err = d.inspect(ctx, id, func(c *panel.Controller) {
		info.Options = c.Options()
		info.Stats = c.Stats()
	})
	info.Version = p.scene.Current().Version
	return info, err
}

// List describes every panel in dashboard order.
func (d *Dashboard) List(ctx context.Context) ([]Info, error) {
	out := make([]Info, 0, len(d.panels))
	for _, p := range d.panels {
		info, err := d.Info(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Regions returns the rectangles of the last data pass of a panel.
func (d *Dashboard) Regions(ctx context.Context, id string) ([]jigsaw.Region, error) {
	var out []jigsaw.Region
	err := d.inspect(ctx, id, func(c *panel.Controller) {
		out = append(out, c.Regions()...)
	})
	return out, err
}

// EditorTabs returns the tabs registered by a panel in edit mode.
func (d *Dashboard) EditorTabs(ctx context.Context, id string) ([]panel.EditorTab, error) {
	var out []panel.EditorTab
	err := d.inspect(ctx, id, func(c *panel.Controller) {
		out = append(out, c.EditorTabs()...)
	})
	return out, err
}

// Refresh loads the panel series for the active window and hands them to the
// panel as a data-received event. Refreshes of one panel run one at a time;
// each reads the window only once it holds the turn, so the last one to
// start posts the newest window last.
func (d *Dashboard) Refresh(ctx context.Context, id string) error {
	p, err := d.Panel(id)
	if err != nil {
		return err
	}
	select {
	case p.refreshing <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.refreshing }()
	var opts panel.Options
	if err := p.events.Call(ctx, func() { opts = p.ctrl.Options() }); err != nil {
		return err
	}

	from, to := d.deps.Times.Current().Millis()
	logger.Begin(id)
	logger.Append(id, fmt.Sprintf("[%-8s][Refresh] source=%q window=%d..%d max=%d", id, p.Source, from, to, opts.MaxDataPoints))

	series, err := d.deps.Store.LoadSeries(ctx, database.SeriesQuery{
		Source:        p.Source,
		From:          from,
		To:            to,
		MaxDataPoints: opts.MaxDataPoints,
	})
	if err != nil {
		err = fmt.Errorf("load series for panel %s: %w", id, err)
		logger.FlushError(id, err)
		if d.deps.Observer != nil {
			d.deps.Observer.RefreshError(id)
		}
		return err
	}

	points := 0
	if len(series) > 0 {
		points = len(series[0].Datapoints)
	}
	if err := p.events.Post(ctx, panel.EventDataReceived, panel.DataEvent{Series: series}); err != nil {
		logger.FlushError(id, err)
		return err
	}
	logger.Success(id, fmt.Sprintf("%d points", points))
	return nil
}

// RefreshAll refreshes every panel and joins the errors.
func (d *Dashboard) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, p := range d.panels {
		if err := d.Refresh(ctx, p.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefreshSource refreshes the panels that show source, including panels
// that show every source.
func (d *Dashboard) RefreshSource(ctx context.Context, source string) error {
	var errs []error
	for _, p := range d.panels {
		if p.Source != "" && p.Source != source {
			continue
		}
		if err := d.Refresh(ctx, p.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// broadcast posts one event to every panel, the way the global app bus does.
func (d *Dashboard) broadcast(ctx context.Context, name string, payload any) error {
	var errs []error
	for _, p := range d.panels {
		if err := p.events.Post(ctx, name, payload); err != nil {
			errs = append(errs, fmt.Errorf("panel %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Hover broadcasts a graph hover at x (Unix milliseconds on the time axis).
func (d *Dashboard) Hover(ctx context.Context, x float64) error {
	return d.broadcast(ctx, panel.EventGraphHover, panel.Hover(x))
}

// HoverClear broadcasts the end of a graph hover.
func (d *Dashboard) HoverClear(ctx context.Context) error {
	return d.broadcast(ctx, panel.EventGraphHoverClear, nil)
}

// Run starts the panel loops, initializes every panel, loads data and keeps
// it fresh until ctx is cancelled. Panels then get a teardown before their
// loops stop.
func (d *Dashboard) Run(ctx context.Context) error {
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	for _, p := range d.panels {
		go p.events.Run(loopCtx)
	}
	if err := d.broadcast(ctx, panel.EventInitialized, nil); err != nil {
		return err
	}
	if err := d.RefreshAll(ctx); err != nil {
		log.Printf("initial refresh: %v", err)
	}
	for _, p := range d.panels {
		_ = p.events.Call(ctx, func() {})
	}
	close(d.ready)

	var wg sync.WaitGroup
	if d.deps.RefreshSpec != "" {
		c := cron.New()
		_, err := c.AddFunc(d.deps.RefreshSpec, func() {
			if d.deps.Relative > 0 {
				// the time watcher refreshes after the slide
				d.deps.Times.Slide(d.deps.Relative, time.Now())
				return
			}
			if err := d.RefreshAll(ctx); err != nil {
				log.Printf("scheduled refresh: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("error scheduling refresh: %w", err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		log.Printf("Auto refresh scheduled: %s", d.deps.RefreshSpec)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.watchTime(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range d.panels {
		_ = p.events.Post(stopCtx, panel.EventTeardown, nil)
		_ = p.events.Call(stopCtx, func() {})
	}
	stopLoops()
	for _, p := range d.panels {
		<-p.events.Done()
	}
	return nil
}

// watchTime refreshes every panel when the window changes.
func (d *Dashboard) watchTime(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.deps.Times.Changes():
			log.Printf("Time range changed: %s .. %s", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
			if err := d.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				log.Printf("refresh after time change: %v", err)
			}
		}
	}
}
