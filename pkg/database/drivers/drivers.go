// Package drivers links the SQL backends a -db-type can name. Only the
// server binary imports it; tests open the backends they need directly.
package drivers

import (
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// backends maps a -db-type to the library serving it in this build. The
// per-backend files fill it from init.
var backends = map[string]string{}

func provide(name, library string) { backends[name] = library }

// unavailable tells the operator how to get a backend this build lacks.
var unavailable = map[string]string{
	"sqlite": "modernc.org/sqlite has no build for this platform",
	"chai":   "chai files open through modernc.org/sqlite, which has no build for this platform",
	"genji":  "github.com/genjidb/genji has no build for this platform",
	"duckdb": "rebuild on linux/amd64 or linux/arm64 with CGO_ENABLED=1 and -tags duckdb",
	"pgx":    "github.com/jackc/pgx/v5/stdlib was not linked",
}

// Linked lists the backends of this build as "name (library)", sorted by name.
func Linked() []string {
	out := make([]string, 0, len(backends))
	for name, lib := range backends {
		out = append(out, fmt.Sprintf("%s (%s)", name, lib))
	}
	sort.Strings(out)
	return out
}

// Check returns nil when dbType names a driver registered with database/sql,
// and otherwise an error that says how to get it.
func Check(dbType string) error {
	name := strings.ToLower(strings.TrimSpace(dbType))
	if slices.Contains(sql.Drivers(), name) {
		return nil
	}
	if why, ok := unavailable[name]; ok {
		return fmt.Errorf("database driver %q is not in this build: %s", name, why)
	}
	return fmt.Errorf("unknown database driver %q", dbType)
}
