package dashboard

import (
	"encoding/json"
	"fmt"
	"os"

	"jigsaw-map/pkg/panel"
)

// PanelConfig describes one panel of the dashboard file.
type PanelConfig struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Source  string        `json:"source"` // empty shows every source
	Options panel.Options `json:"options"`
}

// Config is the dashboard definition.
type Config struct {
	Title  string        `json:"title"`
	Panels []PanelConfig `json:"panels"`
}

// DefaultConfig is a single panel over every source.
func DefaultConfig() Config {
	return Config{
		Title:  "Jigsaw map",
		Panels: []PanelConfig{{Title: "All sources", Options: panel.DefaultOptions()}},
	}
}

// LoadConfig reads a dashboard file. Options missing from a panel keep their
// defaults; that includes booleans such as autoZoom.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read dashboard: %w", err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes a dashboard definition.
func ParseConfig(raw []byte) (Config, error) {
	var file struct {
		Title  string `json:"title"`
		Panels []struct {
			ID      string          `json:"id"`
			Title   string          `json:"title"`
			Source  string          `json:"source"`
			Options json.RawMessage `json:"options"`
		} `json:"panels"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("decode dashboard: %w", err)
	}

	cfg := Config{Title: file.Title}
	for i, p := range file.Panels {
		opts := panel.DefaultOptions()
		if len(p.Options) > 0 {
			if err := json.Unmarshal(p.Options, &opts); err != nil {
				return Config{}, fmt.Errorf("panel %d options: %w", i, err)
			}
		}
		cfg.Panels = append(cfg.Panels, PanelConfig{
			ID:      p.ID,
			Title:   p.Title,
			Source:  p.Source,
			Options: opts.WithDefaults(),
		})
	}
	if len(cfg.Panels) == 0 {
		return Config{}, fmt.Errorf("dashboard has no panels")
	}
	if cfg.Title == "" {
		cfg.Title = DefaultConfig().Title
	}
	return cfg, nil
}
