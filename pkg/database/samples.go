package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jigsaw-map/pkg/jigsaw"
)

// insertChunk keeps multi-row INSERT statements below the SQLite parameter cap.
const insertChunk = 150

// Series targets returned by LoadSeries. Panels read them by position, the
// names only label the arrays for clients.
const (
	TargetLat = "lat"
	TargetLon = "lon"
)

// InsertSamples stores samples, ignoring duplicates of (source, ts).
// PostgreSQL goes through COPY; other engines use chunked multi-row INSERTs
// inside one transaction.
func (db *Database) InsertSamples(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}
	if db.Driver == "pgx" {
		for start := 0; start < len(samples); start += 5000 {
			end := min(start+5000, len(samples))
			if err := db.insertSamplesPostgreSQLCopy(ctx, samples[start:end]); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(samples); start += insertChunk {
		end := min(start+insertChunk, len(samples))
		if err := db.insertSamplesChunk(ctx, tx, samples[start:end]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

func (db *Database) insertSamplesChunk(ctx context.Context, tx *sql.Tx, chunk []Sample) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO samples (source, ts, lat, lon, value) VALUES ")
	args := make([]any, 0, len(chunk)*5)
	n := 0
	for i, s := range chunk {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := 0; j < 5; j++ {
			if j > 0 {
				sb.WriteByte(',')
			}
			n++
			sb.WriteString(db.ph(n))
		}
		sb.WriteByte(')')
		args = append(args,
			s.Source, s.Time,
			nullableFloat64(s.LatValid, s.Lat),
			nullableFloat64(s.LonValid, s.Lon),
			nullableFloat64(s.ValueValid, s.Value),
		)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}
	return nil
}

// StreamSamples streams rows matching q ordered by time. It avoids loading
// large result sets into memory and stops when the context is done.
// MaxDataPoints is ignored here.
func (db *Database) StreamSamples(ctx context.Context, q SeriesQuery) (<-chan Sample, <-chan error) {
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		query := "SELECT source, ts, lat, lon, value FROM samples WHERE ts >= " + db.ph(1) + " AND ts <= " + db.ph(2)
		args := []any{q.From, q.To}
		if q.Source != "" {
			query += " AND source = " + db.ph(3)
			args = append(args, q.Source)
		}
		query += " ORDER BY ts"

		rows, err := db.DB.QueryContext(ctx, query, args...)
		if err != nil {
			errCh <- fmt.Errorf("query samples: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				s             Sample
				lat, lon, val sql.NullFloat64
			)
			if err := rows.Scan(&s.Source, &s.Time, &lat, &lon, &val); err != nil {
				errCh <- fmt.Errorf("scan sample: %w", err)
				return
			}
			s.Lat, s.LatValid = lat.Float64, lat.Valid
			s.Lon, s.LonValid = lon.Float64, lon.Valid
			s.Value, s.ValueValid = val.Float64, val.Valid
			select {
			case out <- s:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate samples: %w", err)
		}
	}()

	return out, errCh
}

// LoadSeries returns the latitude, longitude and value series of q, in that
// order, ready for a panel data pass. Missing fields become null points.
// When more rows match than q.MaxDataPoints, every k-th row is kept.
func (db *Database) LoadSeries(ctx context.Context, q SeriesQuery) ([]jigsaw.Series, error) {
	rowsCh, errCh := db.StreamSamples(ctx, q)
	var rows []Sample
	for s := range rowsCh {
		rows = append(rows, s)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	rows = decimate(rows, q.MaxDataPoints)

	valueTarget := q.Source
	if valueTarget == "" {
		valueTarget = "value"
	}
	lat := jigsaw.Series{Target: TargetLat, Datapoints: make([]jigsaw.Point, 0, len(rows))}
	lon := jigsaw.Series{Target: TargetLon, Datapoints: make([]jigsaw.Point, 0, len(rows))}
	val := jigsaw.Series{Target: valueTarget, Datapoints: make([]jigsaw.Point, 0, len(rows))}
	for _, s := range rows {
		lat.Datapoints = append(lat.Datapoints, point(s.LatValid, s.Lat, s.Time))
		lon.Datapoints = append(lon.Datapoints, point(s.LonValid, s.Lon, s.Time))
		val.Datapoints = append(val.Datapoints, point(s.ValueValid, s.Value, s.Time))
	}
	return []jigsaw.Series{lat, lon, val}, nil
}

func point(valid bool, v float64, ts int64) jigsaw.Point {
	if !valid {
		return jigsaw.Null(ts)
	}
	return jigsaw.P(v, ts)
}

// decimate keeps at most limit rows by taking every k-th one. The last row is
// always kept so the path ends where the data ends.
func decimate(rows []Sample, limit int) []Sample {
	if limit <= 0 || len(rows) <= limit {
		return rows
	}
	step := (len(rows) + limit - 1) / limit
	out := make([]Sample, 0, limit+1)
	for i := 0; i < len(rows); i += step {
		out = append(out, rows[i])
	}
	if last := rows[len(rows)-1]; out[len(out)-1].Time != last.Time {
		if len(out) == limit {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// Sources lists stored sources with their row counts and time span.
func (db *Database) Sources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := db.DB.QueryContext(ctx,
		`SELECT source, COUNT(*), MIN(ts), MAX(ts) FROM samples GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Count, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}
