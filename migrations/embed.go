// Package migrations embeds the SQL schema migrations so binaries can apply
// them without a checkout of this directory.
package migrations

import "embed"

// FS holds every NNNNNN_name.up.sql and .down.sql file
//
//go:embed *.sql
var FS embed.FS
