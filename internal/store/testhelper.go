package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver for source stores and the metastore
)

// OpenTestSource opens a sqlite-backed source store in t.TempDir() and
// registers cleanup. The returned Source starts with no tables; tests
// create and seed their own.
func OpenTestSource(t *testing.T) *Source {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.sqlite")
	reg, err := NewRegistry(Config{
		Name:         "test-source",
		Driver:       "sqlite3",
		DSN:          path,
		QueryTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	src, err := reg.Source("test-source")
	if err != nil {
		t.Fatalf("open test source: %v", err)
	}
	return src
}

// OpenTestMetastore opens a metastore in t.TempDir(), runs all pending
// migrations, and registers cleanup.
func OpenTestMetastore(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meta.sqlite")
	db, err := OpenMetastore(path)
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}
