// Package migrations embeds the SQL schema of the fulfillment service.
package migrations

import "embed"

// FS holds every migration file, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
