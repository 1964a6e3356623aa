//go:build cgo && duckdb && linux && (amd64 || arm64)

// Build with: CGO_ENABLED=1 go build -tags duckdb
package drivers

import _ "github.com/marcboeker/go-duckdb" // registers "duckdb"

func init() { provide("duckdb", "github.com/marcboeker/go-duckdb") }
