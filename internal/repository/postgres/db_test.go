package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations_FromScratch(t *testing.T) {
	migrations, err := PendingMigrations(0)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, int64(1), migrations[0].Version)
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
}

func TestPendingMigrations_UpToDate(t *testing.T) {
	all, err := PendingMigrations(0)
	require.NoError(t, err)
	latest := all[len(all)-1].Version

	pending, err := PendingMigrations(latest)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationFiles_AreGooseAnnotated(t *testing.T) {
	entries, err := migrationFiles.ReadDir(migrationsDir)
	require.NoError(t, err)

	for _, entry := range entries {
		body, err := migrationFiles.ReadFile(migrationsDir + "/" + entry.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", entry.Name())
		assert.Contains(t, string(body), "-- +goose Down", entry.Name())
	}
}
