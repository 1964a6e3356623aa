package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"jigsaw-map/pkg/jigsaw"
)

// Options is the per-panel configuration edited through the "Options" tab.
// In JSON, resizeQuiet is milliseconds; a Go duration string such as "750ms"
// is accepted too.
type Options struct {
	MaxDataPoints   int             `json:"maxDataPoints"`
	AutoZoom        bool            `json:"autoZoom"`
	ScrollWheelZoom bool            `json:"scrollWheelZoom"`
	DefaultLayer    string          `json:"defaultLayer"`
	LineColor       string          `json:"lineColor"`
	PointColor      string          `json:"pointColor"`
	MinCellSamples  int             `json:"minCellSamples"`
	CellSize        jigsaw.CellSize `json:"cellSize"`
	ResizeQuiet     time.Duration   `json:"resizeQuiet"`
}

// DefaultOptions returns the stock panel settings.
func DefaultOptions() Options {
	return Options{
		MaxDataPoints:   500,
		AutoZoom:        true,
		ScrollWheelZoom: false,
		DefaultLayer:    LayerOpenStreetMap,
		LineColor:       "#ffff",
		PointColor:      "royalblue",
		MinCellSamples:  jigsaw.DefaultMinSamples,
		CellSize:        jigsaw.DefaultCellSize,
		ResizeQuiet:     500 * time.Millisecond,
	}
}

// WithDefaults fills zero-valued fields from DefaultOptions. Booleans are
// taken as given.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.MaxDataPoints <= 0 {
		o.MaxDataPoints = d.MaxDataPoints
	}
	if o.DefaultLayer == "" {
		o.DefaultLayer = d.DefaultLayer
	}
	if o.LineColor == "" {
		o.LineColor = d.LineColor
	}
	if o.PointColor == "" {
		o.PointColor = d.PointColor
	}
	if o.MinCellSamples <= 0 {
		o.MinCellSamples = d.MinCellSamples
	}
	if o.CellSize.Lat <= 0 || o.CellSize.Lng <= 0 {
		o.CellSize = d.CellSize
	}
	if o.ResizeQuiet <= 0 {
		o.ResizeQuiet = d.ResizeQuiet
	}
	return o
}

// MarshalJSON writes ResizeQuiet as whole milliseconds.
func (o Options) MarshalJSON() ([]byte, error) {
	type plain Options
	return json.Marshal(struct {
		plain
		ResizeQuiet int64 `json:"resizeQuiet"`
	}{plain(o), o.ResizeQuiet.Milliseconds()})
}

// UnmarshalJSON decodes over o, so fields missing from b keep their values.
func (o *Options) UnmarshalJSON(b []byte) error {
	type plain Options
	aux := struct {
		*plain
		ResizeQuiet json.RawMessage `json:"resizeQuiet"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	raw := bytes.TrimSpace(aux.ResizeQuiet)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	d, err := parseQuiet(raw)
	if err != nil {
		return fmt.Errorf("resizeQuiet: %w", err)
	}
	o.ResizeQuiet = d
	return nil
}

func parseQuiet(raw []byte) (time.Duration, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return time.ParseDuration(s)
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0, err
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// EditorTab is a tab registered in the panel editor.
type EditorTab struct {
	Title    string `json:"title"`
	Template string `json:"template"`
	Index    int    `json:"index"`
}

// OptionsTab is the editor tab registered on init-edit-mode.
var OptionsTab = EditorTab{
	Title:    "Options",
	Template: "public/plugins/jigsaw-map/partials/options.html",
	Index:    2,
}
