package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"jigsaw-map/pkg/database"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		def     string
		want    []database.Sample
		wantErr bool
	}{
		{
			name: "single object",
			raw:  `{"source":"car","ts":1000,"lat":45.1,"lon":7.6,"value":0.5}`,
			want: []database.Sample{database.Located("car", 1000, 45.1, 7.6, 0.5)},
		},
		{
			name: "array with nulls and default source",
			raw:  `[{"ts":"1970-01-01T00:00:02Z","lat":null,"lon":7,"value":3},{"ts":3000,"lat":1,"lon":2}]`,
			def:  "bike",
			want: []database.Sample{
				{Source: "bike", Time: 2000, Lon: 7, LonValid: true, Value: 3, ValueValid: true},
				{Source: "bike", Time: 3000, Lat: 1, LatValid: true, Lon: 2, LonValid: true},
			},
		},
		{name: "no source", raw: `{"ts":1}`, wantErr: true},
		{name: "no timestamp", raw: `{"source":"a"}`, wantErr: true},
		{name: "bad timestamp", raw: `{"source":"a","ts":"tomorrow"}`, wantErr: true},
		{name: "empty", raw: `  `, wantErr: true},
		{name: "garbage", raw: `{`, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeJSON([]byte(tc.raw), tc.def)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeCSV(t *testing.T) {
	t.Parallel()

	in := "ts,lat,lon,value,source\n" +
		"1000,45.0,7.0,1,car\n" +
		"2000,,7.1,2,\n" +
		"3000,45.2,7.2,,car\n"
	got, err := DecodeCSV(strings.NewReader(in), "default")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []database.Sample{
		database.Located("car", 1000, 45.0, 7.0, 1),
		{Source: "default", Time: 2000, Lon: 7.1, LonValid: true, Value: 2, ValueValid: true},
		{Source: "car", Time: 3000, Lat: 45.2, LatValid: true, Lon: 7.2, LonValid: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	for _, bad := range []string{
		"ts,lat,lon\n1,2,3\n",
		"ts,lat,lon,value\nx,1,2,3\n",
		"ts,lat,lon,value\n1,north,2,3\n",
		"",
	} {
		if _, err := DecodeCSV(strings.NewReader(bad), "s"); err == nil {
			t.Errorf("DecodeCSV(%q) succeeded", bad)
		}
	}
}

func TestSourceFromTopic(t *testing.T) {
	t.Parallel()
	for topic, want := range map[string]string{
		"jigsaw/samples/car": "car",
		"car":                "car",
		"a/":                 "",
	} {
		if got := SourceFromTopic(topic); got != want {
			t.Errorf("SourceFromTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}

type recordingWriter struct {
	got []database.Sample
	err error
}

func (w *recordingWriter) InsertSamples(_ context.Context, s []database.Sample) error {
	w.got = append(w.got, s...)
	return w.err
}

type recordingRefresher struct{ sources []string }

func (r *recordingRefresher) RefreshSource(_ context.Context, src string) error {
	r.sources = append(r.sources, src)
	return nil
}

type recordingCounter struct{ statuses []string }

func (c *recordingCounter) IngestMessage(transport, status string) {
	c.statuses = append(c.statuses, transport+":"+status)
}

// TestSinkHandle checks that a message is stored once and refreshes each of
// its sources once.
func TestSinkHandle(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	r := &recordingRefresher{}
	c := &recordingCounter{}
	sink := &Sink{Writer: w, Refresher: r, Counter: c}

	payload := `[{"source":"b","ts":1,"lat":1,"lon":1,"value":1},
	             {"source":"a","ts":2,"lat":1,"lon":1,"value":1},
	             {"source":"b","ts":3,"lat":1,"lon":1,"value":1}]`
	if err := sink.Handle(context.Background(), "mqtt", []byte(payload), ""); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.got) != 3 {
		t.Fatalf("stored %d samples, want 3", len(w.got))
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.sources); diff != "" {
		t.Fatalf("refreshed (-want +got):\n%s", diff)
	}

	if err := sink.Handle(context.Background(), "kafka", []byte(`nope`), ""); !errors.Is(err, ErrDecode) {
		t.Fatalf("bad payload error = %v", err)
	}
	w.err = errors.New("read-only")
	if err := sink.Handle(context.Background(), "kafka", []byte(`{"source":"a","ts":9}`), ""); !errors.Is(err, w.err) || errors.Is(err, ErrDecode) {
		t.Fatalf("store error = %v", err)
	}
	if diff := cmp.Diff([]string{"mqtt:ok", "kafka:error", "kafka:error"}, c.statuses); diff != "" {
		t.Fatalf("counter (-want +got):\n%s", diff)
	}
}
