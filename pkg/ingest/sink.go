package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"jigsaw-map/pkg/database"
)

// ErrDecode marks a message that can never be stored as it is.
var ErrDecode = errors.New("decode samples")

// Writer stores samples.
type Writer interface {
	InsertSamples(ctx context.Context, samples []database.Sample) error
}

// Refresher reloads the panels that show a source.
type Refresher interface {
	RefreshSource(ctx context.Context, source string) error
}

// Counter is told about every processed message. *metrics.Metrics
// satisfies it.
type Counter interface {
	IngestMessage(transport, status string)
}

// Sink stores decoded samples and refreshes the affected panels.
type Sink struct {
	Writer    Writer
	Refresher Refresher // optional
	Counter   Counter   // optional
}

// Apply stores samples and refreshes every source they touch. Refresh
// failures are logged; only storage errors are returned.
func (s *Sink) Apply(ctx context.Context, samples []database.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := s.Writer.InsertSamples(ctx, samples); err != nil {
		return fmt.Errorf("store samples: %w", err)
	}
	if s.Refresher == nil {
		return nil
	}
	for _, src := range Sources(samples) {
		if err := s.Refresher.RefreshSource(ctx, src); err != nil {
			log.Printf("refresh %s after ingest: %v", src, err)
		}
	}
	return nil
}

// Handle decodes one JSON message from transport and applies it. Decode
// failures wrap ErrDecode.
func (s *Sink) Handle(ctx context.Context, transport string, payload []byte, defaultSource string) error {
	samples, err := DecodeJSON(payload, defaultSource)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDecode, err)
	} else {
		err = s.Apply(ctx, samples)
	}
	if s.Counter != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.Counter.IngestMessage(transport, status)
	}
	return err
}

// Sources lists the distinct sources of samples in sorted order.
func Sources(samples []database.Sample) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		seen[s.Source] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}
