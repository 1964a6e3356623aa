//go:build (netbsd && amd64) || ios || freebsd || darwin || (linux && riscv64) || (linux && ppc64le) || (linux && s390x) || (linux && amd64) || (linux && arm64) || (linux && 386) || android || (openbsd && amd64) || (openbsd && arm64)

package drivers

import (
	"database/sql"

	sqlite "modernc.org/sqlite"
)

// Chai databases are SQLite-compatible files, so "chai" is a second name
// for the modernc driver.
func init() {
	sql.Register("chai", &sqlite.Driver{})
	provide("chai", "modernc.org/sqlite")
}
