// Package migrations compiles the schema SQL into the binary, so a
// deployment is just the executable and a config file.
package migrations

import (
	"embed"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/database"
)

//go:embed *.sql
var schemaFS embed.FS

func init() {
	database.MigrationsFS = schemaFS
	database.MigrationsDir = "." // files sit at the embed root
}
