package jigsaw

// Ingest pairs the latitude, longitude and value series of one batch into
// positioned samples.
//
// The latitude series drives the walk. An entry survives only when the
// longitude entry at the same index exists, both coordinates carry a value and
// both share the same timestamp. Anything else is skipped without complaint.
// The value is taken from the same index of the value series; when it is
// missing or null the sample still belongs to the path but is not binned.
func Ingest(lat, lon, value Series) []Sample {
	lats := lat.Datapoints
	lons := lon.Datapoints
	values := value.Datapoints

	samples := make([]Sample, 0, len(lats))
	for i := range lats {
		if i >= len(lons) {
			break
		}
		la, lo := lats[i], lons[i]
		if !la.Valid || !lo.Valid || la.Time != lo.Time {
			continue
		}
		s := Sample{
			Position:  LatLng{Lat: la.Value, Lng: lo.Value},
			Timestamp: la.Time,
		}
		if i < len(values) && values[i].Valid {
			s.Value = values[i].Value
			s.ValueValid = true
		}
		samples = append(samples, s)
	}
	return samples
}

// IngestBatch is Ingest over a host batch. The first three series are latitude,
// longitude and value; a batch with fewer series yields nothing.
func IngestBatch(batch []Series) []Sample {
	if len(batch) < 3 {
		return nil
	}
	return Ingest(batch[0], batch[1], batch[2])
}
