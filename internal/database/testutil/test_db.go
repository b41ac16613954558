// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/database"
)

type schemaLevel int

const (
	schemaNone schemaLevel = iota
	schemaMigrated
	schemaSeeded
)

// TestDBOption raises the schema preparation applied by MustOpenTestDB.
type TestDBOption func(*schemaLevel)

// WithAutoMigrate creates every table.
func WithAutoMigrate() TestDBOption {
	return raise(schemaMigrated)
}

// WithSeedData creates every table and inserts the default lab services.
func WithSeedData() TestDBOption {
	return raise(schemaSeeded)
}

func raise(to schemaLevel) TestDBOption {
	return func(level *schemaLevel) {
		if *level < to {
			*level = to
		}
	}
}

// MustOpenTestDB opens a private in-memory SQLite database for the calling test. Each
// call gets its own shared-cache name so parallel tests never see each other's rows.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	level := schemaNone
	for _, opt := range opts {
		opt(&level)
	}

	db, err := database.Open(database.Config{Driver: "sqlite", Name: "test-" + uuid.NewString()})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	switch level {
	case schemaSeeded:
		require.NoError(t, database.AutoMigrateAndSeed(db))
	case schemaMigrated:
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}

// MustCount returns the number of rows stored for model.
func MustCount(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

