// Package repotest opens throwaway SQLite-backed stores for tests.
package repotest

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"landmark-quest/repository"
)

// NewDB opens a migrated database file inside t.TempDir().
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "landmark.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection: SQLite serialises writers anyway, and this keeps
	// transactions from tripping over "database is locked"
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore is NewDB wrapped in a GormStore.
func NewStore(t *testing.T) *repository.GormStore {
	t.Helper()
	return repository.NewGormStore(NewDB(t))
}
