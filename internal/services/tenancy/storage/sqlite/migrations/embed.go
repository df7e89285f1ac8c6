// Package migrations embeds the SQL schema of the tenancy sqlite stores.
package migrations

import "embed"

//go:embed events/*.sql
var EventsFS embed.FS

//go:embed projections/*.sql
var ProjectionsFS embed.FS
