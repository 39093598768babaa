// Package db embeds the ShopKart schema and demo catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// Products is the demo catalog loaded by seed-db when no file is given.
//
//go:embed seed/products.json
var Products []byte
