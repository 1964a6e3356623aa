package panel

// Base layer names offered in the layer control.
const (
	LayerOpenStreetMap = "OpenStreetMap"
	LayerOpenTopoMap   = "OpenTopoMap"
	LayerSatellite     = "Satellite"
)

// TileLayer describes a tile source. ForcedOverlay, when set, is shown on top
// of the layer whenever the layer is the active base (used for imagery
// without labels).
type TileLayer struct {
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Attribution   string     `json:"attribution"`
	Subdomains    string     `json:"subdomains,omitempty"`
	MaxZoom       int        `json:"maxZoom"`
	ZIndex        int        `json:"zIndex"`
	ForcedOverlay *TileLayer `json:"forcedOverlay,omitempty"`
}

// Layers is the ordered set of base layers of one panel instance.
type Layers []TileLayer

// DefaultLayers builds a fresh layer set. Each panel gets its own copy.
func DefaultLayers() Layers {
	return Layers{
		{
			Name:        LayerOpenStreetMap,
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: `&copy; <a href="http://www.openstreetmap.org/copyright">OpenStreetMap</a>`,
			MaxZoom:     19,
			ZIndex:      1,
		},
		{
			Name: LayerOpenTopoMap,
			URL:  "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
			Attribution: `Map data: &copy; <a href="http://www.openstreetmap.org/copyright">OpenStreetMap</a>, ` +
				`<a href="http://viewfinderpanoramas.org">SRTM</a> | Map style: &copy; ` +
				`<a href="https://opentopomap.org">OpenTopoMap</a> (<a href="https://creativecommons.org/licenses/by-sa/3.0/">CC-BY-SA</a>)`,
			MaxZoom: 17,
			ZIndex:  1,
		},
		{
			Name: LayerSatellite,
			URL:  "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "Imagery &copy; Esri &mdash; Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, " +
				"Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
			ZIndex: 1,
			ForcedOverlay: &TileLayer{
				Name:       "Satellite labels",
				URL:        "https://stamen-tiles-{s}.a.ssl.fastly.net/toner-labels/{z}/{x}/{y}.png",
				Subdomains: "abcd",
				Attribution: `Labels by <a href="http://stamen.com">Stamen Design</a>, ` +
					`<a href="http://creativecommons.org/licenses/by/3.0">CC BY 3.0</a> &mdash; ` +
					`Map data &copy; <a href="http://www.openstreetmap.org/copyright">OpenStreetMap</a>`,
				MaxZoom: 20,
			},
		},
	}
}

// Get looks a layer up by name.
func (ls Layers) Get(name string) (TileLayer, bool) {
	for _, l := range ls {
		if l.Name == name {
			return l, true
		}
	}
	return TileLayer{}, false
}

// Names lists layer names in control order.
func (ls Layers) Names() []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out
}
