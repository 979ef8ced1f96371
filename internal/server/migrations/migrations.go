// Package migrations embeds the identity daemon's schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
