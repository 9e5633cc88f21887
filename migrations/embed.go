// Package migrations embeds the catalogue schema migrations into the binary.
package migrations

import (
	"embed"

	"github.com/icetech/icetray/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
