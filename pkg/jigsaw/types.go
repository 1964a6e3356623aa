// Package jigsaw turns three parallel time series (latitude, longitude and a
// measured value) into a path of positioned samples and a coarse grid of
// averaged cells ("jigsaw" pieces) that a map panel can draw.
package jigsaw

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Point is a single datapoint of a series. The host sends it as the array
// [value, timestampMs]; a JSON null value leaves Valid false.
type Point struct {
	Value float64
	Valid bool
	Time  int64
}

// P builds a valid point. Handy for tests and for callers that never carry nulls.
func P(value float64, ts int64) Point { return Point{Value: value, Valid: true, Time: ts} }

// Null builds a point without a value.
func Null(ts int64) Point { return Point{Time: ts} }

// UnmarshalJSON accepts [value, ts] where value may be null.
func (p *Point) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("datapoint: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("datapoint: want [value, ts], got %d elements", len(raw))
	}
	*p = Point{}
	if !bytes.Equal(bytes.TrimSpace(raw[0]), []byte("null")) {
		if err := json.Unmarshal(raw[0], &p.Value); err != nil {
			return fmt.Errorf("datapoint value: %w", err)
		}
		p.Valid = true
	}
	var ts float64
	if err := json.Unmarshal(raw[1], &ts); err != nil {
		return fmt.Errorf("datapoint timestamp: %w", err)
	}
	p.Time = int64(ts)
	return nil
}

// MarshalJSON writes the [value, ts] form back out.
func (p Point) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte(fmt.Sprintf("[null,%d]", p.Time)), nil
	}
	v, err := json.Marshal(p.Value)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("[%s,%d]", v, p.Time)), nil
}

// Series is one named time series as delivered in a batch.
type Series struct {
	Target     string  `json:"target"`
	Datapoints []Point `json:"datapoints"`
}

// LatLng is a geographic position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Box is an axis-aligned lat/lon rectangle given by its south-west and
// north-east corners.
type Box struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p LatLng) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// Extend grows the box so it covers p.
func (b Box) Extend(p LatLng) Box {
	if p.Lat < b.SouthWest.Lat {
		b.SouthWest.Lat = p.Lat
	}
	if p.Lng < b.SouthWest.Lng {
		b.SouthWest.Lng = p.Lng
	}
	if p.Lat > b.NorthEast.Lat {
		b.NorthEast.Lat = p.Lat
	}
	if p.Lng > b.NorthEast.Lng {
		b.NorthEast.Lng = p.Lng
	}
	return b
}

// Sample is one positioned measurement on the path.
type Sample struct {
	Position   LatLng  `json:"position"`
	Timestamp  int64   `json:"timestamp"`
	Value      float64 `json:"value"`
	ValueValid bool    `json:"valueValid"`
}

// PathBounds returns the box covering every sample position.
// ok is false for an empty path.
func PathBounds(samples []Sample) (Box, bool) {
	if len(samples) == 0 {
		return Box{}, false
	}
	box := Box{SouthWest: samples[0].Position, NorthEast: samples[0].Position}
	for _, s := range samples[1:] {
		box = box.Extend(s.Position)
	}
	return box, true
}
