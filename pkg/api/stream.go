package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"jigsaw-map/pkg/scene"
)

// handleStream sends the current scene of a panel, then every new one, as
// Server-Sent Events. Every heartbeat compares the panel's version with the
// last one sent and catches up when bus updates were dropped; otherwise the
// idle connection gets a comment line as keep-alive.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	// Subscribe first so nothing published after the snapshot is missed.
	updates := h.Bus.Subscribe(ctx, id, 8)
	current, err := h.Dash.Snapshot(id)
	if err != nil {
		h.fail(w, "stream", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	client := uuid.NewString()
	if h.Logf != nil {
		h.Logf("SSE client %s watching panel %s", client, id)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	var sent uint64
	send := func(s *scene.Snapshot) bool {
		if s.Version != 0 && s.Version <= sent {
			return true
		}
		b, err := json.Marshal(s)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: scene\ndata: %s\n\n", s.Version, b); err != nil {
			return false
		}
		flusher.Flush()
		sent = s.Version
		return true
	}
	if !send(current) {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if !send(s) {
				return
			}
		case <-ticker.C:
			if cur, err := h.Dash.Snapshot(id); err == nil && cur.Version > sent {
				if !send(cur) {
					return
				}
				continue
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
