// Package migrations bundles the SQL schema migrations.
package migrations

import "embed"

// FS holds the versioned up/down migration files.
//
//go:embed *.sql
var FS embed.FS
