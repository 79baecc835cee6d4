package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	db, err := Open(BackendSQLite, filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	assert.NoError(t, Close(db))
}

func TestOpenUnsupportedBackend(t *testing.T) {
	_, err := Open("oracle", "whatever", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database backend")
}
