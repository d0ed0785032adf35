// Package migrations embeds the tgpanel schema migrations into the binary.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS is the migration source passed to database.Migrate.
var FS = files
