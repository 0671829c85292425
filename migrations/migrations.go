// Package migrations embeds the SQL schema of the numbering store
package migrations

import (
	"database/sql"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// FS returns the embedded migration files
func FS() fs.FS {
	return files
}

// NewProvider returns a goose provider over the embedded migrations
func NewProvider(db *sql.DB, opts ...goose.ProviderOption) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db, files, opts...)
}
