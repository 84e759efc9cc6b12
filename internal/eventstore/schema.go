package eventstore

import "embed"

// migrations はイベントストアのスキーマ定義。
//
//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"
