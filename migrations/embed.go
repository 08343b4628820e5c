// Package migrations embeds the SQL schema migrations for the fintrack
// database. Files are applied in lexical order by the migration runner.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
