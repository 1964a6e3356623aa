// Package timerange keeps the dashboard-wide time window that every panel
// queries. Panels narrow it through a map zoom box; the dashboard reloads
// its panels whenever it changes.
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Range is a closed time window.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Millis returns the window bounds as Unix milliseconds.
func (r Range) Millis() (from, to int64) { return r.From.UnixMilli(), r.To.UnixMilli() }

// Service holds the active window. Reads are lock-free; changes are
// announced on a one-slot channel that always carries the latest window.
type Service struct {
	cur     atomic.Pointer[Range]
	changes chan Range
}

// New creates a service starting at r.
func New(r Range) *Service {
	s := &Service{changes: make(chan Range, 1)}
	s.cur.Store(&r)
	return s
}

// Current returns the active window.
func (s *Service) Current() Range { return *s.cur.Load() }

// SetTime replaces the active window. Reversed bounds are swapped.
func (s *Service) SetTime(from, to time.Time) {
	if from.After(to) {
		from, to = to, from
	}
	r := Range{From: from, To: to}
	s.cur.Store(&r)

	for {
		select {
		case s.changes <- r:
			return
		default:
		}
		// slot is full: drop the stale window and retry
		select {
		case <-s.changes:
		default:
		}
	}
}

// Changes delivers the window after every SetTime. Only the newest pending
// window is kept.
func (s *Service) Changes() <-chan Range { return s.changes }

// Parse reads a window specification relative to now.
//
//	"6h"                        -> now-6h .. now
//	"2024-01-02T00:00:00Z,2024-01-03T00:00:00Z" -> explicit RFC 3339 bounds
//	"1700000000000,1700003600000"              -> explicit Unix milliseconds
func Parse(spec string, now time.Time) (Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Range{}, fmt.Errorf("empty time range")
	}
	if from, to, ok := strings.Cut(spec, ","); ok {
		f, err := parseInstant(from)
		if err != nil {
			return Range{}, fmt.Errorf("range start: %w", err)
		}
		t, err := parseInstant(to)
		if err != nil {
			return Range{}, fmt.Errorf("range end: %w", err)
		}
		if f.After(t) {
			f, t = t, f
		}
		return Range{From: f, To: t}, nil
	}
	d, err := time.ParseDuration(strings.TrimPrefix(spec, "now-"))
	if err != nil {
		return Range{}, fmt.Errorf("relative range %q: %w", spec, err)
	}
	if d <= 0 {
		return Range{}, fmt.Errorf("relative range %q must be positive", spec)
	}
	return Range{From: now.Add(-d).UTC(), To: now.UTC()}, nil
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor Unix milliseconds", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Relative returns the window length when spec is relative to now ("6h",
// "now-30m"). Explicit bounds report false.
func Relative(spec string) (time.Duration, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.Contains(spec, ",") {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimPrefix(spec, "now-"))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// Slide moves the window so it ends at now while keeping its length d.
func (s *Service) Slide(d time.Duration, now time.Time) {
	s.SetTime(now.Add(-d).UTC(), now.UTC())
}
