package api

import (
	"context"
	"errors"
	"time"
)

var (
	errCacheDisabled = errors.New("cache disabled")
	errCacheStopped  = errors.New("cache stopped")
	errNoLoader      = errors.New("no loader")
)

type cacheRequest struct {
	ctx    context.Context
	key    string
	loader func(context.Context) ([]byte, error)
	reply  chan cacheResponse
}

type cacheResponse struct {
	data []byte
	err  error
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// ResponseCache keeps rendered responses (chart pages, listings) in memory
// for a TTL. A single goroutine owns the map; handlers talk to it over a
// channel, so there are no mutexes. Keys carry the scene version, which
// makes a new data pass a cache miss on its own.
type ResponseCache struct {
	ttl      time.Duration
	requests chan cacheRequest
	quit     chan struct{}
	now      func() time.Time

	// OnHit and OnMiss run on the cache goroutine; keep them cheap.
	OnHit  func()
	OnMiss func()
}

// NewResponseCache starts the cache goroutine. A non-positive ttl disables
// caching and returns nil, which every method accepts.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return nil
	}
	cache := &ResponseCache{
		ttl:      ttl,
		requests: make(chan cacheRequest),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	go cache.loop()
	return cache
}

// Close stops the cache goroutine. Calling it more than once is harmless.
func (c *ResponseCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
		return
	default:
	}
	close(c.quit)
}

// Get returns the cached bytes for key or runs loader to produce them.
// With a nil cache the loader runs directly.
func (c *ResponseCache) Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		if loader == nil {
			return nil, errCacheDisabled
		}
		return loader(ctx)
	}
	req := cacheRequest{
		ctx:    ctx,
		key:    key,
		loader: loader,
		reply:  make(chan cacheResponse, 1),
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case resp := <-req.reply:
		if resp.err != nil {
			return nil, resp.err
		}
		if resp.data == nil {
			return nil, nil
		}
		out := make([]byte, len(resp.data))
		copy(out, resp.data)
		return out, nil
	}
}

func (c *ResponseCache) loop() {
	store := make(map[string]cacheEntry)
	sweep := time.NewTicker(c.ttl * 4)
	defer sweep.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-sweep.C:
			now := c.now()
			for k, e := range store {
				if !now.Before(e.expires) {
					delete(store, k)
				}
			}
		case req := <-c.requests:
			now := c.now()
			if entry, ok := store[req.key]; ok && now.Before(entry.expires) {
				if c.OnHit != nil {
					c.OnHit()
				}
				req.reply <- cacheResponse{data: entry.data}
				continue
			}
			if c.OnMiss != nil {
				c.OnMiss()
			}
			if req.loader == nil {
				req.reply <- cacheResponse{err: errNoLoader}
				continue
			}
			data, err := req.loader(req.ctx)
			if err == nil && data != nil {
				buf := make([]byte, len(data))
				copy(buf, data)
				store[req.key] = cacheEntry{data: buf, expires: now.Add(c.ttl)}
			} else if err != nil {
				delete(store, req.key)
			}
			req.reply <- cacheResponse{data: data, err: err}
		}
	}
}
