package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"jigsaw-map/pkg/jigsaw"
)

// viridis ramps the cell means from low to high.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleChart renders the jigsaw cells of a panel as an HTML scatter chart:
// one point per drawn cell at its center, coloured by the cell mean.
// Pages are cached per scene version.
func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.Dash.Snapshot(id)
	if err != nil {
		h.fail(w, "chart", err)
		return
	}
	key := fmt.Sprintf("chart:%s:%d", id, snap.Version)

	page, err := h.Cache.Get(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		regions, err := h.Dash.Regions(ctx, id)
		if err != nil {
			return nil, err
		}
		return renderCellChart(id, regions)
	})
	if err != nil {
		h.fail(w, "chart", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// renderCellChart draws regions on a lng/lat plane.
func renderCellChart(panelID string, regions []jigsaw.Region) ([]byte, error) {
	data := make([]opts.ScatterData, 0, len(regions))
	minMean, maxMean := 0.0, 1.0
	for i, rg := range regions {
		c := rg.Bounds
		lat := (c.SouthWest.Lat + c.NorthEast.Lat) / 2
		lng := (c.SouthWest.Lng + c.NorthEast.Lng) / 2
		data = append(data, opts.ScatterData{Value: []interface{}{lng, lat, rg.Mean, rg.Count}})
		if i == 0 || rg.Mean < minMean {
			minMean = rg.Mean
		}
		if i == 0 || rg.Mean > maxMean {
			maxMean = rg.Mean
		}
	}
	if maxMean <= minMean {
		maxMean = minMean + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Jigsaw cells", Theme: "dark", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Jigsaw cells", Subtitle: fmt.Sprintf("panel=%s cells=%d", panelID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minMean),
			Max:        float32(maxMean),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("cells", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
