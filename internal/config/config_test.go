package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Backend.Storage)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "STORE-000", cfg.Inventory.CentralStoreID)
	assert.Equal(t, 10, cfg.Inventory.LowStockThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "LAST_WRITE_WINS", cfg.Sync.Strategy)
	assert.Equal(t, 5, cfg.Consumer.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Consumer.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Consumer.ClaimTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("SYNC_STRATEGY", "MERGE_QUANTITIES")
	t.Setenv("DATABASE_PORT", "3307")
	t.Setenv("BACKEND_STORAGE", "mysql")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "MERGE_QUANTITIES", cfg.Sync.Strategy)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "mysql", cfg.Backend.Storage)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "INVENTORY_CENTRAL_STORE_ID=WAREHOUSE-1\nCONSUMER_MAX_ATTEMPTS=3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("INVENTORY_CENTRAL_STORE_ID")
		os.Unsetenv("CONSUMER_MAX_ATTEMPTS")
	})

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "WAREHOUSE-1", cfg.Inventory.CentralStoreID)
	assert.Equal(t, 3, cfg.Consumer.MaxAttempts)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 3307, User: "svc", Password: "secret", Name: "inventory"}

	dsn := c.DSN()

	assert.Contains(t, dsn, "svc:secret@tcp(db:3307)/inventory")
	assert.Contains(t, dsn, "parseTime=true")
}
