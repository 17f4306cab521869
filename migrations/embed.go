// Package migrations embeds the ordered SQL schema files applied by
// "clinic-api migrate up".
package migrations

import "embed"

// Files holds every NNN_name.sql migration.
//
//go:embed *.sql
var Files embed.FS
