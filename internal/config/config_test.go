package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.toml")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), missingFile(t))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.AllowedOrigins, cfg.AllowedOrigins)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath(), cfg.Database.DSN)
	assert.Equal(t, 5, cfg.Collab.EditorCapacity)
	assert.Equal(t, 30*time.Second, cfg.Collab.ReconcileInterval)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")

	cfg, err := Load(viper.New(), missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.RefillInterval)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("OFFICECHAT_PORT", ":7070")
	t.Setenv("OFFICECHAT_COLLAB_EDITOR_CAPACITY", "2")
	t.Setenv("OFFICECHAT_DATABASE_DRIVER", "postgres")

	cfg, err := Load(viper.New(), missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Port)
	assert.Equal(t, 2, cfg.Collab.EditorCapacity)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "officechat.toml")
	content := `
port = "8181"
allowed_origins = ["http://office.example"]

[database]
dsn = "/tmp/chat.db"

[collab]
editor_capacity = 3
reconcile_interval = "10s"

[admin]
email = "root@example.com"
password = "pw"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.Port)
	assert.Equal(t, []string{"http://office.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "/tmp/chat.db", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Collab.EditorCapacity)
	assert.Equal(t, 10*time.Second, cfg.Collab.ReconcileInterval)
	assert.Equal(t, "root@example.com", cfg.Admin.Email)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "-1")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")
	t.Setenv("OFFICECHAT_LOG_FORMAT", "xml")

	cfg, err := Load(viper.New(), missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestSanitize(t *testing.T) {
	cfg := Config{
		Port:           "3000",
		AllowedOrigins: []string{" http://x.example ", "", "  "},
	}.Sanitize()

	assert.Equal(t, ":3000", cfg.Port)
	assert.Equal(t, []string{"http://x.example"}, cfg.AllowedOrigins)
	assert.Equal(t, Default().MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.Collab.EditorCapacity)
}

func TestEnsureSecret(t *testing.T) {
	cfg := Default()
	generated, err := cfg.EnsureSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, cfg.Auth.Secret, 64)

	secret := cfg.Auth.Secret
	generated, err = cfg.EnsureSecret()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, secret, cfg.Auth.Secret)
}
