// Package testdb provides the library fixture (authors, books, awards) used by
// tests: the schema definition and a seeded SQLite database.
package testdb

import (
	"bytes"
	_ "embed"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/crud_registry/internal/schema"
)

//go:embed library.yaml
var librarySchema []byte

// LibrarySQL creates and seeds the fixture tables. It runs on SQLite and Postgres.
//
//go:embed library.sql
var LibrarySQL string

// Schema returns a cache loaded with the library definitions.
func Schema(t testing.TB) *schema.Cache {
	t.Helper()
	c := schema.NewCache()
	require.NoError(t, c.LoadYAML(bytes.NewReader(librarySchema)))
	return c
}

// SchemaPath returns the location of library.yaml on disk.
func SchemaPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "library.yaml")
}

// Open returns a seeded SQLite database in a per-test temp dir.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(LibrarySQL)
	require.NoError(t, err)
	return db
}

// IDs extracts the "id" column of each row as int64, preserving order.
func IDs[T ~map[string]any](rows []T) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		switch v := r["id"].(type) {
		case int64:
			out = append(out, v)
		case int32:
			out = append(out, int64(v))
		case int:
			out = append(out, int64(v))
		}
	}
	return out
}
