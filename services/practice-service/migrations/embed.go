// Package migrations embeds the goose SQL migrations of the practice service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
