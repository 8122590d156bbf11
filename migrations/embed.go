// Package migrations embeds the SQL schema so the service can migrate itself
// at startup without shipping the directory.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file, golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
