// Package sqldocs exposes the traceability SQL schema directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for lots, transformations and logistics.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for lots, transformations and logistics.
//
//go:embed postgres.sql
var Postgres string
