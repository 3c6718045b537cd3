// Package migrations embeds the SQL schema of both services.
package migrations

import "embed"

//go:embed inventory/*.sql booking/*.sql
var FS embed.FS

const (
	Inventory = "inventory"
	Booking   = "booking"
)
