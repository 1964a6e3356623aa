package panel

import (
	"context"
	"errors"
)

// Lifecycle and bus event names. The host side posts these; the controller
// subscribes to the ones it cares about in Attach.
const (
	EventInitialized     = "panel-initialized"
	EventViewModeChanged = "view-mode-changed"
	EventInitEditMode    = "init-edit-mode"
	EventTeardown        = "panel-teardown"
	EventSizeChanged     = "panel-size-changed"
	EventDataReceived    = "data-received"
	EventSnapshotLoad    = "data-snapshot-load"
	EventOptionsChanged  = "options-changed"

	EventGraphHover      = "graph-hover"
	EventGraphHoverClear = "graph-hover-clear"

	EventBaseLayerChange = "baselayerchange"
	EventBoxZoomEnd      = "boxzoomend"

	// EventSizeInvalidate is posted by the resize debouncer once the quiet
	// period is over.
	EventSizeInvalidate = "map-size-invalidate"
)

// ErrStopped is returned by Post once the loop has exited.
var ErrStopped = errors.New("panel: event loop stopped")

// Handler receives the payload posted with an event.
type Handler func(payload any)

type posted struct {
	name    string
	payload any
	fn      func()
}

// Events is a named-event dispatcher. Handlers are registered with On before
// Run starts and are then only read, so the map needs no locking. Run
// executes posted events one by one on its own goroutine, which gives every
// handler exclusive access to the state it touches.
type Events struct {
	handlers map[string][]Handler
	queue    chan posted
	done     chan struct{}
}

// NewEvents creates a dispatcher whose queue holds up to buffer pending events.
func NewEvents(buffer int) *Events {
	return &Events{
		handlers: make(map[string][]Handler),
		queue:    make(chan posted, buffer),
		done:     make(chan struct{}),
	}
}

// On subscribes h to name. Call it before Run.
func (e *Events) On(name string, h Handler) {
	e.handlers[name] = append(e.handlers[name], h)
}

// Has reports whether anything listens to name.
func (e *Events) Has(name string) bool { return len(e.handlers[name]) > 0 }

// Dispatch runs the handlers for name on the calling goroutine.
func (e *Events) Dispatch(name string, payload any) {
	for _, h := range e.handlers[name] {
		h(payload)
	}
}

// Post queues an event for the loop. It blocks while the queue is full and
// fails once the loop has stopped or ctx ends.
func (e *Events) Post(ctx context.Context, name string, payload any) error {
	select {
	case e.queue <- posted{name: name, payload: payload}:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and waits for it to return. Readers outside the
// loop use it to look at controller state.
func (e *Events) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.queue <- posted{fn: func() { fn(); close(finished) }}:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued events until ctx is cancelled.
func (e *Events) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			if ev.fn != nil {
				ev.fn()
				continue
			}
			e.Dispatch(ev.name, ev.payload)
		}
	}
}

// Done is closed when Run returns.
func (e *Events) Done() <-chan struct{} { return e.done }
