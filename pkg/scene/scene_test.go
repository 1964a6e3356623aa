package scene

import (
	"encoding/json"
	"testing"

	"jigsaw-map/pkg/jigsaw"
	"jigsaw-map/pkg/panel"
)

func track(n int) []jigsaw.Series {
	var lat, lon, val jigsaw.Series
	for i := 0; i < n; i++ {
		ts := int64(1000 + i*10)
		lat.Datapoints = append(lat.Datapoints, jigsaw.P(52.0007, ts))
		lon.Datapoints = append(lon.Datapoints, jigsaw.P(13.001+float64(i)*1e-5, ts))
		val.Datapoints = append(val.Datapoints, jigsaw.P(float64(i), ts))
	}
	return []jigsaw.Series{lat, lon, val}
}

// TestSceneRecordsPanelDrawing drives a real controller against the scene and
// checks what a browser would receive.
func TestSceneRecordsPanelDrawing(t *testing.T) {
	t.Parallel()

	var published []*Snapshot
	s := New("p1", func(snap *Snapshot) { published = append(published, snap) })
	c := panel.NewController("p1", panel.DefaultOptions(), nil, s, nil)

	c.OnDataReceived(track(6))
	snap := s.Current()
	if !snap.Created {
		t.Fatal("map not created")
	}
	if got := snap.Count(KindPath); got != 1 {
		t.Fatalf("paths = %d, want 1", got)
	}
	if got := snap.Count(KindRectangle); got != 1 {
		t.Fatalf("rectangles = %d, want 1", got)
	}
	if snap.Fit == nil || snap.View != nil {
		t.Fatalf("want fitted view, got fit=%v view=%v", snap.Fit, snap.View)
	}
	if len(published) == 0 || published[len(published)-1] != snap {
		t.Fatal("last render was not published")
	}
	if len(snap.Tiles) != 1 || snap.Tiles[0].Name != panel.LayerOpenStreetMap {
		t.Fatalf("tiles = %+v", snap.Tiles)
	}

	c.OnHover(panel.Hover(1025))
	if got := s.Current().Count(KindMarker); got != 1 {
		t.Fatalf("markers = %d, want 1", got)
	}

	c.OnDataReceived(nil)
	snap = s.Current()
	if snap.Count(KindPath)+snap.Count(KindRectangle)+snap.Count(KindMarker) != 0 {
		t.Fatalf("features left after empty batch: %+v", snap.Features.Features)
	}
	if snap.View == nil || snap.View.Zoom != 1 {
		t.Fatalf("view = %+v, want world view", snap.View)
	}
}

func TestSnapshotGeoJSON(t *testing.T) {
	t.Parallel()

	s := New("p1", nil)
	s.Create(panel.MapOptions{})
	s.AddPolyline([]jigsaw.LatLng{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}, panel.Style{Color: "#fff", Weight: 3})
	s.AddRectangle(jigsaw.Region{
		Count:  5,
		Mean:   2.5,
		Bounds: jigsaw.Box{SouthWest: jigsaw.LatLng{Lat: 1, Lng: 2}, NorthEast: jigsaw.LatLng{Lat: 1.5, Lng: 2.5}},
	}, panel.Style{Color: "red"})
	s.Render()

	raw, err := json.Marshal(s.Current())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Version  uint64 `json:"version"`
		Features struct {
			Type     string `json:"type"`
			Features []struct {
				Geometry struct {
					Type        string          `json:"type"`
					Coordinates json.RawMessage `json:"coordinates"`
				} `json:"geometry"`
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Version != 1 || decoded.Features.Type != "FeatureCollection" {
		t.Fatalf("unexpected header: %+v", decoded)
	}
	fs := decoded.Features.Features
	if len(fs) != 2 {
		t.Fatalf("features = %d, want 2", len(fs))
	}
	if fs[0].Geometry.Type != "LineString" || string(fs[0].Geometry.Coordinates) != "[[2,1],[4,3]]" {
		t.Errorf("path geometry = %s %s", fs[0].Geometry.Type, fs[0].Geometry.Coordinates)
	}
	if fs[1].Geometry.Type != "Polygon" {
		t.Errorf("rectangle geometry = %s", fs[1].Geometry.Type)
	}
	if fs[1].Properties["mean"] != 2.5 {
		t.Errorf("rectangle mean = %v", fs[1].Properties["mean"])
	}
}

func TestRemoveTileLayerKeepsOthers(t *testing.T) {
	t.Parallel()

	s := New("p1", nil)
	s.AddTileLayer(panel.TileLayer{Name: "a"}, 1)
	s.AddTileLayer(panel.TileLayer{Name: "b"}, 2)
	s.AddTileLayer(panel.TileLayer{Name: "a"}, 3)
	s.RemoveTileLayer("b")
	s.Render()
	tiles := s.Current().Tiles
	if len(tiles) != 1 || tiles[0].Name != "a" || tiles[0].Z != 3 {
		t.Fatalf("tiles = %+v", tiles)
	}
}

// TestVectorLayerEdits covers the widget calls the controller makes between
// renders: copies, moves, restyles and removals by id.
func TestVectorLayerEdits(t *testing.T) {
	t.Parallel()

	s := New("p1", nil)
	path := []jigsaw.LatLng{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}
	line := s.AddPolyline(path, panel.Style{Weight: 2})
	path[0].Lat = 99
	marker := s.AddCircleMarker(jigsaw.LatLng{Lat: 5, Lng: 6}, panel.Style{Radius: 4})

	s.MoveMarker(marker, jigsaw.LatLng{Lat: 7, Lng: 8})
	s.MoveMarker(line, jigsaw.LatLng{Lat: 0, Lng: 0})
	s.SetStyle(line, panel.Style{Color: "red", Weight: 3})
	s.RemoveLayer(panel.LayerID(1000))
	s.InvalidateSize(true)
	s.SetScrollWheelZoom(true)
	s.Render()

	snap := s.Current()
	if len(snap.Features.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(snap.Features.Features))
	}
	lineF, markerF := snap.Features.Features[0], snap.Features.Features[1]
	if coords := lineF.Geometry.Coordinates.([][2]float64); coords[0] != [2]float64{2, 1} || len(coords) != 2 {
		t.Fatalf("line coordinates = %v", coords)
	}
	if got := lineF.Properties["style"].(panel.Style); got.Color != "red" || got.Weight != 3 {
		t.Fatalf("line style = %+v", got)
	}
	if got := markerF.Geometry.Coordinates.([2]float64); got != [2]float64{8, 7} {
		t.Fatalf("marker at %v, want [8 7]", got)
	}
	if snap.SizeEpoch != 1 || !snap.ScrollWheelZoom || !s.ScrollWheelZoom() {
		t.Fatalf("sizeEpoch = %d scroll = %v", snap.SizeEpoch, snap.ScrollWheelZoom)
	}

	s.RemoveLayer(line)
	s.Render()
	if got := s.Current().Count(KindPath); got != 0 {
		t.Fatalf("paths after removal = %d", got)
	}
	if got := s.Current().Count(KindMarker); got != 1 {
		t.Fatalf("markers after removal = %d", got)
	}
}
