// Package migrations embeds the sensor daemon's SQL schema into the binary.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Pass it to database.Migrate.
//
//go:embed *.sql
var FS embed.FS
