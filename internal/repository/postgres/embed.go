package postgres

import "embed"

// Migrations holds the embedded goose migration files
//
//go:embed migrations/*.sql
var Migrations embed.FS
