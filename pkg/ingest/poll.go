package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PollConfig configures the HTTP feed poller.
type PollConfig struct {
	URL      string        // endpoint answering with JSON samples
	Source   string        // default source for entries without one
	Interval time.Duration // pause between fetches, 1 minute when zero
	Client   *http.Client  // http.DefaultClient when nil
}

// maxPollBody caps one poll response.
const maxPollBody = 16 << 20

func fetchFeed(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
}

// RunPoll fetches cfg.URL once right away and then every cfg.Interval,
// storing what it returns, until ctx ends. The fetcher and the writer are
// separate goroutines so a slow database never delays the next fetch; a
// payload still queued when the next one arrives is replaced.
func RunPoll(ctx context.Context, cfg PollConfig, sink *Sink) error {
	if cfg.URL == "" {
		return fmt.Errorf("poll url is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	payloads := make(chan []byte, 1)

	// writer
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case body := <-payloads:
				if err := sink.Handle(ctx, "poll", body, cfg.Source); err != nil {
					log.Printf("poll %s: %v", cfg.URL, err)
				}
			}
		}
	}()

	log.Printf("poll feed start: url=%s interval=%s", cfg.URL, cfg.Interval)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		body, err := fetchFeed(ctx, client, cfg.URL)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("poll fetch error: %v", err)
			if sink.Counter != nil {
				sink.Counter.IngestMessage("poll", "error")
			}
		case err == nil:
			select {
			case <-payloads:
			default:
			}
			payloads <- body
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
