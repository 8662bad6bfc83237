// Package migrations embeds the per-dialect SQL migration trees so that
// both backends ship them inside the compiled binary, exactly as the
// teacher's pkg/database/client.go embeds its single Postgres tree.
package migrations

import "embed"

//go:embed sqlite
var SQLite embed.FS

//go:embed mysql
var MySQL embed.FS
