package drivers

import _ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"

func init() { provide("pgx", "github.com/jackc/pgx/v5") }
