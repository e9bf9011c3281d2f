package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"notifyd/internal/config"
	"notifyd/internal/store/memory"
	"notifyd/internal/store/sqldb"
)

func TestNewPreferenceStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, cleanup, err := NewPreferenceStore(&config.Config{StorageDSN: "memory"}, zap.NewNop())
		require.NoError(t, err)
		defer cleanup()
		require.IsType(t, &memory.Store{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		dsn := "sqlite://" + filepath.Join(t.TempDir(), "prefs.db")
		s, cleanup, err := NewPreferenceStore(&config.Config{StorageDSN: dsn}, zap.NewNop())
		require.NoError(t, err)
		defer cleanup()
		require.IsType(t, &sqldb.Store{}, s)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, _, err := NewPreferenceStore(&config.Config{StorageDSN: "etcd://x"}, zap.NewNop())
		require.Error(t, err)
	})
}
