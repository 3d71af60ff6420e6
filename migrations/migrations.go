// Package migrations embeds the schema for both supported databases.
package migrations

import "embed"

// SqliteMigrations holds the SQLite schema files, applied in filename order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL schema files.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
