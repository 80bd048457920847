// Package migrations embeds the SQL schema into the binary.
//
// Each dialect has its own directory so SQLite and Postgres can use their
// native types while sharing version numbers.
package migrations

import (
	"embed"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsRoot = "."
}
