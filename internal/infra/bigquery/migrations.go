package bigquery

import "embed"

// Migrations holds the versioned SQL files applied by cmd/migrate.
// File names follow NNNN_name.sql; {{PROJECT_ID}}, {{DATASET_ID}} and {{TABLE_ID}}
// are substituted at apply time.
//
//go:embed migrations/*.sql
var Migrations embed.FS
