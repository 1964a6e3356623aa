package api

import (
	"context"
	"time"
)

// RequestKind separates cheap panel events from sample uploads.
type RequestKind int

const (
	// RequestEvent is a panel event or hover post; requests of one client
	// run one at a time.
	RequestEvent RequestKind = iota
	// RequestUpload writes samples; a client waits for the cooldown between
	// two uploads.
	RequestUpload
)

// ClientLimiter sequences the requests of each client. One goroutine per
// client owns its queue, and a dispatcher goroutine owns the client table.
type ClientLimiter struct {
	cooldown time.Duration
	requests chan clientRequest
	now      func() time.Time
}

type clientRequest struct {
	client string
	ctx    context.Context
	kind   RequestKind
	grant  chan grant
}

type grant struct {
	release chan struct{}
	waited  time.Duration
	err     error
}

// Permit is held while a request runs.
type Permit struct {
	release chan struct{}
	Waited  time.Duration
}

// Release lets the next request of the client proceed. Double release and a
// nil permit are harmless.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewClientLimiter starts the dispatcher.
func NewClientLimiter(uploadCooldown time.Duration) *ClientLimiter {
	l := &ClientLimiter{
		cooldown: uploadCooldown,
		requests: make(chan clientRequest),
		now:      time.Now,
	}
	go l.dispatch()
	return l
}

// Acquire waits for the client's turn. A nil limiter grants immediately.
func (l *ClientLimiter) Acquire(ctx context.Context, client string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}
	req := clientRequest{client: client, ctx: ctx, kind: kind, grant: make(chan grant, 1)}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- req:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case g := <-req.grant:
		if g.err != nil {
			return nil, g.err
		}
		return &Permit{release: g.release, Waited: g.waited}, nil
	}
}

func (l *ClientLimiter) dispatch() {
	queues := make(map[string]chan clientRequest)
	for req := range l.requests {
		q, ok := queues[req.client]
		if !ok {
			q = make(chan clientRequest, 16)
			queues[req.client] = q
			go l.serve(q)
		}
		select {
		case q <- req:
		case <-req.ctx.Done():
			req.grant <- grant{err: req.ctx.Err()}
		}
	}
}

func (l *ClientLimiter) serve(queue <-chan clientRequest) {
	var lastUpload time.Time
	for req := range queue {
		start := l.now()
		if req.kind == RequestUpload && !lastUpload.IsZero() {
			if wait := lastUpload.Add(l.cooldown).Sub(start); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-req.ctx.Done():
					timer.Stop()
					req.grant <- grant{err: req.ctx.Err()}
					continue
				case <-timer.C:
				}
			}
		}
		if req.ctx.Err() != nil {
			req.grant <- grant{err: req.ctx.Err()}
			continue
		}

		release := make(chan struct{})
		req.grant <- grant{release: release, waited: l.now().Sub(start)}
		// a request context ends when its handler returns, so an abandoned
		// grant cannot hold the queue
		select {
		case <-release:
		case <-req.ctx.Done():
		}
		if req.kind == RequestUpload {
			lastUpload = l.now()
		}
	}
}
