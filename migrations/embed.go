// Package migrations embeds the SQL schema migrations into the binary so the
// gateway can migrate its database without the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for database.Migrate.
//
//go:embed *.sql
var FS embed.FS
