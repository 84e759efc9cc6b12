package careplan

import "embed"

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"
