package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Database wraps the SQL connection that stores geolocated samples.
type Database struct {
	DB     *sql.DB // The underlying SQL database connection
	Driver string  // Normalized driver name so SQL builders can stay declarative
}

// normalizeDBType trims and lowercases driver names so downstream switch
// blocks do not miss engine-specific handling because of stray case or spaces.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// Config holds the configuration details for initializing the database.
type Config struct {
	DBType    string // sqlite, chai, genji, duckdb or pgx (PostgreSQL)
	DBPath    string // File path for file-based engines; ":memory:" works for sqlite
	DBConn    string // Raw DSN for pgx; overrides host/port/user fields
	DBHost    string // The host for PostgreSQL
	DBPort    int    // The port for PostgreSQL
	DBUser    string // The user for PostgreSQL
	DBPass    string // The password for PostgreSQL
	DBName    string // The name of the PostgreSQL database
	PGSSLMode string // The SSL mode for PostgreSQL
	Port      int    // HTTP port, used in default database file names
}

// DSN builds the driver-specific data source name.
func (cfg Config) DSN() (driver, dsn string, err error) {
	driver = normalizeDBType(cfg.DBType)
	switch driver {
	case "sqlite", "chai", "genji":
		dsn = cfg.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("jigsaw-%d.%s", cfg.Port, driver)
		}
	case "duckdb":
		dsn = cfg.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("jigsaw-%d.duckdb", cfg.Port)
		}
	case "pgx":
		if strings.TrimSpace(cfg.DBConn) != "" {
			dsn = cfg.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.PGSSLMode)
		}
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	return driver, dsn, nil
}

// NewDatabase opens DB and configures connection pooling.
// For SQLite/Chai/Genji we force single-connection mode (no concurrent DB access).
func NewDatabase(config Config) (*Database, error) {
	driverName, dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %w", err)
	}

	switch driverName {
	case "sqlite", "chai", "genji":
		// One physical connection; no concurrent statements at DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if driverName == "sqlite" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteLikeConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
	case "duckdb":
		// DuckDB writes through a single transaction log.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
			log.Printf("duckdb tuning skipped: %v", err)
		}
		cancel()
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Cheap liveness check with timeout so we don't hang at startup
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %w", err)
		}
	}

	log.Printf("Using database driver: %s", driverName)
	return &Database{DB: db, Driver: driverName}, nil
}

// Close releases the connection pool.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// ph returns the n-th (1-based) placeholder for the active driver.
func (db *Database) ph(n int) string {
	if db.Driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// tuneSQLiteLikeConnection applies WAL/synchronous/busy pragmas for SQLite.
// The steps run through a small channel pipeline outside the caller goroutine.
func tuneSQLiteLikeConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}
	return runPragmas(ctx, len(steps), func(i int) error {
		step := steps[i]
		if step.expectRow {
			var mode string
			if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
				return fmt.Errorf("apply %s: %w", step.label, err)
			}
			logf("SQLite tuning %s -> %s", step.label, mode)
			return nil
		}
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("SQLite tuning %s applied", step.label)
		return nil
	})
}

// tuneDuckDBConnection lets DuckDB use every CPU for vectorised scans.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	steps := []string{fmt.Sprintf("PRAGMA threads=%d;", threads)}
	return runPragmas(ctx, len(steps), func(i int) error {
		if _, err := db.ExecContext(ctx, steps[i]); err != nil {
			return fmt.Errorf("apply %q: %w", steps[i], err)
		}
		logf("DuckDB tuning %s applied", steps[i])
		return nil
	})
}

// runPragmas feeds step indexes to a single worker goroutine and returns the
// first error.
func runPragmas(ctx context.Context, n int, apply func(int) error) error {
	jobs := make(chan int)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for i := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}
			if err := apply(i); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	return <-errs
}

// InitSchema creates the samples table and its indexes if missing.
func (db *Database) InitSchema(ctx context.Context) error {
	var stmts []string

	switch db.Driver {
	case "pgx":
		stmts = []string{`
CREATE TABLE IF NOT EXISTS samples (
  id     BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  ts     BIGINT NOT NULL,
  lat    DOUBLE PRECISION,
  lon    DOUBLE PRECISION,
  value  DOUBLE PRECISION,
  CONSTRAINT samples_unique UNIQUE (source, ts)
)`}
	case "duckdb":
		stmts = []string{
			`CREATE SEQUENCE IF NOT EXISTS samples_id_seq START 1`,
			`
CREATE TABLE IF NOT EXISTS samples (
  id     BIGINT PRIMARY KEY DEFAULT nextval('samples_id_seq'),
  source TEXT NOT NULL,
  ts     BIGINT NOT NULL,
  lat    DOUBLE,
  lon    DOUBLE,
  value  DOUBLE,
  UNIQUE (source, ts)
)`}
	case "genji":
		stmts = []string{
			`
CREATE TABLE IF NOT EXISTS samples (
  source TEXT NOT NULL,
  ts     BIGINT NOT NULL,
  lat    DOUBLE,
  lon    DOUBLE,
  value  DOUBLE,
  UNIQUE (source, ts)
)`}
	default:
		stmts = []string{`
CREATE TABLE IF NOT EXISTS samples (
  id     INTEGER PRIMARY KEY,
  source TEXT NOT NULL,
  ts     BIGINT NOT NULL,
  lat    REAL,
  lon    REAL,
  value  REAL,
  UNIQUE (source, ts)
)`}
	}
	stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples (ts)`)

	for _, s := range stmts {
		if _, err := db.DB.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("init schema (%s): %w", db.Driver, err)
		}
	}
	return nil
}
