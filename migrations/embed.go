// Package migrations embeds the registry schema into the binary so the
// SQLite backend can be created without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
