// Package ingest turns feed messages and uploads into stored samples and
// tells the dashboard which sources changed.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"jigsaw-map/pkg/database"
)

// ErrNoSource is returned for a sample that names no source when no default
// was supplied either.
var ErrNoSource = errors.New("ingest: sample without source")

// record is the wire form of one sample. Missing or null coordinates and
// values are stored as NULL.
type record struct {
	Source string          `json:"source"`
	TS     json.RawMessage `json:"ts"`
	Lat    *float64        `json:"lat"`
	Lon    *float64        `json:"lon"`
	Value  *float64        `json:"value"`
}

// DecodeJSON reads one object or an array of objects:
//
//	{"source":"car","ts":1700000000000,"lat":45.1,"lon":7.6,"value":0.12}
//
// ts is Unix milliseconds or an RFC 3339 string. defaultSource fills records
// without a source.
func DecodeJSON(raw []byte, defaultSource string) ([]database.Sample, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var recs []record
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
	} else {
		var one record
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode sample: %w", err)
		}
		recs = []record{one}
	}

	out := make([]database.Sample, 0, len(recs))
	for i, r := range recs {
		ts, err := parseTimestamp(strings.Trim(string(r.TS), `"`))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		s, err := build(r.Source, defaultSource, ts, r.Lat, r.Lon, r.Value)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// DecodeCSV reads rows with a header naming at least ts, lat, lon and
// value; a source column is optional. Empty cells are NULL.
func DecodeCSV(r io.Reader, defaultSource string) ([]database.Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"ts", "lat", "lon", "value"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("csv header lacks %q", need)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []database.Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		ts, err := parseTimestamp(cell(row, "ts"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		var vals [3]*float64
		for k, name := range []string{"lat", "lon", "value"} {
			v, err := optionalFloat(cell(row, name))
			if err != nil {
				return nil, fmt.Errorf("csv line %d %s: %w", line, name, err)
			}
			vals[k] = v
		}
		s, err := build(cell(row, "source"), defaultSource, ts, vals[0], vals[1], vals[2])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func build(source, defaultSource string, ts int64, lat, lon, value *float64) (database.Sample, error) {
	if source == "" {
		source = defaultSource
	}
	if source == "" {
		return database.Sample{}, ErrNoSource
	}
	s := database.Sample{Source: source, Time: ts}
	if lat != nil {
		s.Lat, s.LatValid = *lat, true
	}
	if lon != nil {
		s.Lon, s.LonValid = *lon, true
	}
	if value != nil {
		s.Value, s.ValueValid = *value, true
	}
	return s, nil
}

func parseTimestamp(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return 0, fmt.Errorf("missing timestamp")
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither Unix milliseconds nor RFC 3339", v)
	}
	return t.UnixMilli(), nil
}

func optionalFloat(v string) (*float64, error) {
	if v == "" || strings.EqualFold(v, "null") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
