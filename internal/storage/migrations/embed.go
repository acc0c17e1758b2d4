// Package migrations ships the schema files with the binary so the
// stores can apply them at startup without an external directory.
package migrations

import "embed"

// PostgresFS holds the numbered PostgreSQL schema migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse table definitions.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
