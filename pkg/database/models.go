package database

// Sample is one stored measurement. Coordinates and value are nullable: a
// receiver without a GPS fix still reports a value, and vice versa.
type Sample struct {
	Source     string  `json:"source"`     // Feed or track the sample belongs to
	Time       int64   `json:"ts"`         // Unix milliseconds
	Lat        float64 `json:"lat"`        // Latitude, valid when LatValid
	Lon        float64 `json:"lon"`        // Longitude, valid when LonValid
	Value      float64 `json:"value"`      // Measured value, valid when ValueValid
	LatValid   bool    `json:"latValid"`   //
	LonValid   bool    `json:"lonValid"`   //
	ValueValid bool    `json:"valueValid"` //
}

// Located builds a sample with every field present.
func Located(source string, ts int64, lat, lon, value float64) Sample {
	return Sample{
		Source: source, Time: ts,
		Lat: lat, Lon: lon, Value: value,
		LatValid: true, LonValid: true, ValueValid: true,
	}
}

// SeriesQuery selects the samples of one panel.
type SeriesQuery struct {
	Source        string // empty selects every source
	From          int64  // inclusive, Unix milliseconds
	To            int64  // inclusive, Unix milliseconds
	MaxDataPoints int    // evenly thin the result down to this many rows; 0 keeps all
}

// SourceSummary describes one source for listings.
type SourceSummary struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
	First  int64  `json:"first"`
	Last   int64  `json:"last"`
}

// nullableFloat64 maps an optional value to a SQL argument.
func nullableFloat64(valid bool, value float64) any {
	if !valid {
		return nil
	}
	return value
}
