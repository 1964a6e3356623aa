package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"jigsaw-map/pkg/database"
)

type chanWriter chan []database.Sample

func (w chanWriter) InsertSamples(ctx context.Context, s []database.Sample) error {
	select {
	case w <- s:
	case <-ctx.Done():
	}
	return nil
}

func TestRunPollStoresEachFetch(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n == 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"ts":1000,"lat":1,"lon":2,"value":3}]`)
	}))
	defer srv.Close()

	w := make(chanWriter, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunPoll(ctx, PollConfig{URL: srv.URL, Source: "station", Interval: 10 * time.Millisecond}, &Sink{Writer: w})
	}()

	for i := 0; i < 2; i++ {
		select {
		case got := <-w:
			if len(got) != 1 || got[0].Source != "station" || !got[0].ValueValid {
				t.Fatalf("fetch %d stored %+v", i, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("fetch %d never stored", i)
		}
	}
	if hits.Load() < 3 {
		t.Fatalf("server hits = %d, want the failed fetch to be retried", hits.Load())
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("RunPoll = %v, want context.Canceled", err)
	}
}

func TestRunPollNeedsURL(t *testing.T) {
	t.Parallel()
	if err := RunPoll(context.Background(), PollConfig{}, &Sink{}); err == nil {
		t.Fatal("empty url accepted")
	}
}
