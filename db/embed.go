// Package db provides the embedded database migrations and seed data.
package db

import "embed"

// Migrations holds the DDL files applied at startup, in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Seed holds the sample catalog used by cmd/seed-db.
//
//go:embed seed/catalog.json
var Seed embed.FS
