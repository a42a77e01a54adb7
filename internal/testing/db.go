// Package testing provides testing utilities and helpers for the qpubinder project.
package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/qpubinder/internal/database"
)

// NewTestDB creates a temporary file-backed SQLite database with the embedded
// schema for name applied. Unknown names give an empty database.
// The returned cleanup function is idempotent.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpPath := filepath.Join(t.TempDir(), fmt.Sprintf("test_%s.db", name))

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		_ = os.Remove(tmpPath)
	}
}

// CreateTempFile writes content to a temporary file with the given name and
// returns its path. The file is removed when the test ends.
func CreateTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write temporary file %s: %v", path, err)
	}
	return path
}
