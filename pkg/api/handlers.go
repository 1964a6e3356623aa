package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jigsaw-map/pkg/dashboard"
	"jigsaw-map/pkg/database"
	"jigsaw-map/pkg/ingest"
	"jigsaw-map/pkg/metrics"
	"jigsaw-map/pkg/panel"
	"jigsaw-map/pkg/scenestream"
	"jigsaw-map/pkg/timerange"
)

// maxUploadBytes caps one sample upload.
const maxUploadBytes = 32 << 20

// SourceLister lists stored sources.
type SourceLister interface {
	Sources(ctx context.Context) ([]database.SourceSummary, error)
}

// =======================
// Public API entry points
// =======================

// Handler translates HTTP requests into dashboard events. Only Dash is
// required; every other collaborator switches its routes off when nil.
type Handler struct {
	Dash    *dashboard.Dashboard
	Sources SourceLister
	Sink    *ingest.Sink
	Bus     *scenestream.Bus
	Cache   *ResponseCache
	Limiter *ClientLimiter
	Metrics *metrics.Metrics
	Logf    func(string, ...any)

	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
}

// Register attaches API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc) {
		name := pattern
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			name = pattern[i+1:]
		}
		mux.Handle(pattern, h.Metrics.WrapHandler(name, fn))
	}

	route("GET /api", h.handleOverview)
	route("GET /api/panels", h.handlePanels)
	route("GET /api/panels/{id}", h.handlePanel)
	route("GET /api/panels/{id}/scene", h.handleScene)
	route("GET /api/panels/{id}/tabs", h.handleTabs)
	route("GET /api/panels/{id}/chart", h.handleChart)
	route("POST /api/panels/{id}/{event}", h.handlePanelEvent)
	route("POST /api/hover", h.handleHover)
	route("POST /api/hover/clear", h.handleHoverClear)
	route("GET /api/time", h.handleTimeGet)
	route("POST /api/time", h.handleTimeSet)
	if h.Bus != nil {
		route("GET /api/panels/{id}/stream", h.handleStream)
	}
	if h.Sources != nil {
		route("GET /api/sources", h.handleSources)
	}
	if h.Sink != nil {
		route("POST /api/samples", h.handleSamples)
	}
}

// handleOverview publishes machine-readable docs of the endpoints.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview := struct {
		Title     string            `json:"title"`
		Endpoints map[string]string `json:"endpoints"`
		Events    []string          `json:"events"`
	}{
		Title: h.Dash.Title(),
		Endpoints: map[string]string{
			"GET /api/panels":               "Panel list with options and the figures of the last data pass.",
			"GET /api/panels/{id}/scene":    "Last rendered map of a panel as GeoJSON features.",
			"GET /api/panels/{id}/stream":   "Server-Sent Events carrying every new scene of a panel.",
			"GET /api/panels/{id}/chart":    "Chart of the jigsaw cells of a panel.",
			"POST /api/panels/{id}/{event}": "Lifecycle event for one panel.",
			"POST /api/hover?x=":            "Graph hover at x (Unix milliseconds) on every panel.",
			"POST /api/hover/clear":         "End of graph hover on every panel.",
			"GET|POST /api/time":            "Dashboard time window; POST ?range=6h or from/to in milliseconds.",
			"POST /api/samples":             "JSON or CSV samples; ?source= names rows without a source.",
		},
		Events: eventNames(),
	}
	h.respondJSON(w, http.StatusOK, overview)
}

func (h *Handler) handlePanels(w http.ResponseWriter, r *http.Request) {
	list, err := h.Dash.List(r.Context())
	if err != nil {
		h.fail(w, "panel list", err)
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	info, err := h.Dash.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "panel", err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

func (h *Handler) handleScene(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Dash.Snapshot(r.PathValue("id"))
	if err != nil {
		h.fail(w, "scene", err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	h.respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.Dash.EditorTabs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "editor tabs", err)
		return
	}
	if tabs == nil {
		tabs = []panel.EditorTab{}
	}
	h.respondJSON(w, http.StatusOK, tabs)
}

// handlePanelEvent maps /api/panels/{id}/{event} onto the panel events.
func (h *Handler) handlePanelEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, event := r.PathValue("id"), r.PathValue("event")

	permit, err := h.Limiter.Acquire(ctx, clientIP(r), RequestEvent)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	if event == "refresh" {
		if err := h.Dash.Refresh(ctx, id); err != nil {
			h.fail(w, "refresh", err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
		return
	}

	name, payload, err := h.decodeEvent(ctx, id, event, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Dash.Post(ctx, id, name, payload); err != nil {
		h.fail(w, "post event", err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "event": name})
}

// decodeEvent turns a short route name and body into a panel event.
func (h *Handler) decodeEvent(ctx context.Context, id, event string, body io.Reader) (string, any, error) {
	body = io.LimitReader(body, maxUploadBytes)
	switch event {
	case "initialized":
		return panel.EventInitialized, nil, nil
	case "edit":
		return panel.EventInitEditMode, nil, nil
	case "teardown":
		return panel.EventTeardown, nil, nil
	case "resize":
		return panel.EventSizeChanged, nil, nil
	case "view-mode":
		return panel.EventViewModeChanged, nil, nil
	case "zoombox":
		var z panel.ZoomBoxEvent
		if err := json.NewDecoder(body).Decode(&z.Bounds); err != nil {
			return "", nil, fmt.Errorf("zoom box: %w", err)
		}
		return panel.EventBoxZoomEnd, z, nil
	case "layer":
		var b panel.BaseLayerEvent
		if err := json.NewDecoder(body).Decode(&b); err != nil || b.Name == "" {
			return "", nil, fmt.Errorf("layer: expected {\"name\": ...}")
		}
		return panel.EventBaseLayerChange, b, nil
	case "options":
		info, err := h.Dash.Info(ctx, id)
		if err != nil {
			return "", nil, err
		}
		opts := info.Options
		if err := json.NewDecoder(body).Decode(&opts); err != nil {
			return "", nil, fmt.Errorf("options: %w", err)
		}
		return panel.EventOptionsChanged, opts, nil
	case "snapshot", "data":
		var d panel.DataEvent
		if err := json.NewDecoder(body).Decode(&d); err != nil {
			return "", nil, fmt.Errorf("%s: %w", event, err)
		}
		if event == "snapshot" {
			return panel.EventSnapshotLoad, d, nil
		}
		return panel.EventDataReceived, d, nil
	}
	return "", nil, fmt.Errorf("unknown event %q", event)
}

func eventNames() []string {
	return []string{"initialized", "edit", "teardown", "resize", "view-mode", "zoombox", "layer", "options", "snapshot", "data", "refresh"}
}

// handleHover broadcasts a graph hover. x comes from the query or a JSON
// body shaped like the hover event ({"pos":{"x":...}}).
func (h *Handler) handleHover(w http.ResponseWriter, r *http.Request) {
	var x float64
	if v := r.URL.Query().Get("x"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "x must be a number", http.StatusBadRequest)
			return
		}
		x = f
	} else {
		var evt panel.HoverEvent
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&evt); err != nil {
			http.Error(w, "missing x", http.StatusBadRequest)
			return
		}
		x = evt.Pos.X
	}
	if err := h.Dash.Hover(r.Context(), x); err != nil {
		h.fail(w, "hover", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHoverClear(w http.ResponseWriter, r *http.Request) {
	if err := h.Dash.HoverClear(r.Context()); err != nil {
		h.fail(w, "hover clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeWindow struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	FromMs int64     `json:"fromMs"`
	ToMs   int64     `json:"toMs"`
}

func windowOf(r timerange.Range) timeWindow {
	from, to := r.Millis()
	return timeWindow{From: r.From, To: r.To, FromMs: from, ToMs: to}
}

func (h *Handler) handleTimeGet(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, windowOf(h.Dash.Times().Current()))
}

// handleTimeSet accepts ?range=<spec> or ?from=&to= in Unix milliseconds.
// The new window reloads every panel.
func (h *Handler) handleTimeSet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rng timerange.Range
	switch {
	case q.Get("range") != "":
		parsed, err := timerange.Parse(q.Get("range"), time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rng = parsed
	case q.Get("from") != "" && q.Get("to") != "":
		from, errF := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errT := strconv.ParseInt(q.Get("to"), 10, 64)
		if errF != nil || errT != nil {
			http.Error(w, "from and to must be Unix milliseconds", http.StatusBadRequest)
			return
		}
		rng = timerange.Range{From: time.UnixMilli(from).UTC(), To: time.UnixMilli(to).UTC()}
	default:
		http.Error(w, "range or from/to required", http.StatusBadRequest)
		return
	}
	h.Dash.Times().SetTime(rng.From, rng.To)
	h.respondJSON(w, http.StatusOK, windowOf(h.Dash.Times().Current()))
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sources.Sources(r.Context())
	if err != nil {
		h.fail(w, "sources", err)
		return
	}
	if list == nil {
		list = []database.SourceSummary{}
	}
	h.respondJSON(w, http.StatusOK, list)
}

// handleSamples stores uploaded samples and refreshes the panels showing
// their sources. text/csv bodies are read as CSV, anything else as JSON.
func (h *Handler) handleSamples(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	permit, err := h.Limiter.Acquire(ctx, clientIP(r), RequestUpload)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	source := r.URL.Query().Get("source")

	var samples []database.Sample
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		samples, err = ingest.DecodeCSV(body, source)
	} else {
		var raw []byte
		raw, err = io.ReadAll(body)
		if err == nil {
			samples, err = ingest.DecodeJSON(raw, source)
		}
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Sink.Apply(ctx, samples); err != nil {
		h.fail(w, "store samples", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"stored":  len(samples),
		"sources": ingest.Sources(samples),
	})
}

// =====================
// Utility helpers
// =====================

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// fail maps domain errors to status codes and logs the rest.
func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownPanel):
		http.Error(w, "unknown panel", http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	case errors.Is(err, panel.ErrStopped):
		http.Error(w, "dashboard stopped", http.StatusServiceUnavailable)
	default:
		http.Error(w, what+" error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("%s error: %v", what, err)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
