// Package migrations embeds the schema of the postgres records store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
