// Package migrations embeds the goose migration scripts for the postgres
// backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
