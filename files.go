package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS exposes the embedded schema migrations so embedding
// applications can run them through persistence-bun at startup.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
