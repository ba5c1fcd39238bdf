// Package dbmigrations exposes embedded SQL migrations for walrus binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into walrus binaries.
//
//go:embed *.sql
var Files embed.FS
