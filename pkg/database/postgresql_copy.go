package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// insertSamplesPostgreSQLCopy streams a chunk into PostgreSQL using COPY.
// A temporary table lets the final INSERT keep the ON CONFLICT policy of
// the main table.
func (db *Database) insertSamplesPostgreSQLCopy(ctx context.Context, chunk []Sample) error {
	if len(chunk) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	tempTable := fmt.Sprintf("temp_samples_%d", time.Now().UnixNano())
	// No ON COMMIT DROP: the table must outlive autocommit until the merge.
	createTemp := fmt.Sprintf(`CREATE TEMP TABLE %s (
source TEXT,
ts BIGINT,
lat DOUBLE PRECISION,
lon DOUBLE PRECISION,
value DOUBLE PRECISION
)`, tempTable)
	if _, err := conn.ExecContext(ctx, createTemp); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	dropCtx, dropCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dropCancel()
	defer conn.ExecContext(dropCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tempTable))

	rows := make([][]any, 0, len(chunk))
	for _, s := range chunk {
		rows = append(rows, []any{
			s.Source, s.Time,
			nullableFloat64(s.LatValid, s.Lat),
			nullableFloat64(s.LonValid, s.Lon),
			nullableFloat64(s.ValueValid, s.Value),
		})
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{tempTable},
			[]string{"source", "ts", "lat", "lon", "value"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy samples into temp table: %w", copyErr)
	}

	insertFromTemp := fmt.Sprintf(`INSERT INTO samples (source, ts, lat, lon, value)
SELECT source, ts, lat, lon, value FROM %s
ON CONFLICT ON CONSTRAINT samples_unique DO NOTHING`, tempTable)
	if _, err := conn.ExecContext(ctx, insertFromTemp); err != nil {
		return fmt.Errorf("merge temp samples: %w", err)
	}
	return nil
}
