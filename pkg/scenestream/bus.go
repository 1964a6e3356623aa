package scenestream

import (
	"context"

	"jigsaw-map/pkg/scene"
)

// Bus fans rendered snapshots out to subscribed viewers without locks.
// A single goroutine owns the listener table; producers and consumers only
// talk to it through channels, so a slow browser never blocks a panel loop.
type Bus struct {
	publish     chan *scene.Snapshot
	subscribe   chan subscription
	unsubscribe chan subscription
}

type subscription struct {
	panelID string
	ch      chan *scene.Snapshot
}

// NewBus constructs a broadcaster for scene snapshots.
// The goroutine lives as long as the process; subscribers are pruned when
// their contexts end.
func NewBus(buffer int) *Bus {
	b := &Bus{
		publish:     make(chan *scene.Snapshot, buffer),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
	}

	go b.run()
	return b
}

// Publish forwards a snapshot to the viewers of its panel.
// The send is non-blocking; when the bus is saturated the oldest queued
// snapshot is dropped so the newest one always gets through.
func (b *Bus) Publish(s *scene.Snapshot) {
	offerLatest(b.publish, s)
}

// offerLatest sends s without blocking, evicting the oldest queued snapshot
// when ch is full. Unbuffered channels only get a single attempt.
func offerLatest(ch chan *scene.Snapshot, s *scene.Snapshot) {
	if cap(ch) == 0 {
		select {
		case ch <- s:
		default:
		}
		return
	}
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers interest in snapshots of panelID.
// The returned channel closes when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, panelID string, buffer int) <-chan *scene.Snapshot {
	ch := make(chan *scene.Snapshot, buffer)
	req := subscription{panelID: panelID, ch: ch}

	b.subscribe <- req

	go func() {
		<-ctx.Done()
		b.unsubscribe <- req
		close(ch)
	}()

	return ch
}

func (b *Bus) run() {
	listeners := make(map[string][]chan *scene.Snapshot)

	for {
		select {
		case req := <-b.subscribe:
			listeners[req.panelID] = append(listeners[req.panelID], req.ch)
		case req := <-b.unsubscribe:
			chans := listeners[req.panelID]
			filtered := chans[:0]
			for _, existing := range chans {
				if existing != req.ch {
					filtered = append(filtered, existing)
				}
			}
			if len(filtered) == 0 {
				delete(listeners, req.panelID)
			} else {
				listeners[req.panelID] = filtered
			}
		case s := <-b.publish:
			for _, ch := range listeners[s.PanelID] {
				offerLatest(ch, s)
			}
		}
	}
}
