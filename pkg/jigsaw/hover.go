package jigsaw

import "math"

// TargetFromX turns the x-position of a host hover event into the integer
// timestamp the path is searched for.
func TargetFromX(x float64) int64 { return int64(math.Floor(x)) }

// Locate finds the sample to highlight for target in a timestamp-ascending
// path. An exact match wins; otherwise the search prefers the closest sample
// at or before target by stepping back one index when the last candidate
// overshot. Targets before the first sample resolve to index 0.
func Locate(samples []Sample, target int64) (int, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	lo, hi := 0, len(samples)-1
	idx := 0
	for lo <= hi {
		idx = (lo + hi) / 2
		ts := samples[idx].Timestamp
		switch {
		case ts == target:
			return idx, true
		case ts < target:
			lo = idx + 1
		default:
			hi = idx - 1
		}
	}
	if idx > 0 && samples[idx].Timestamp > target {
		idx--
	}
	return idx, true
}

// TimeBounds returns the earliest and latest timestamps of the samples that
// fall inside box. ok is false when no sample does.
func TimeBounds(samples []Sample, box Box) (from, to int64, ok bool) {
	from, to = math.MaxInt64, math.MinInt64
	for _, s := range samples {
		if !box.Contains(s.Position) {
			continue
		}
		if s.Timestamp < from {
			from = s.Timestamp
		}
		if s.Timestamp > to {
			to = s.Timestamp
		}
		ok = true
	}
	return from, to, ok
}
