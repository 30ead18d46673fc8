package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("should use defaults when config file is missing", func(t *testing.T) {
		// given
		t.Setenv("TRADIE_AUTH_JWTSECRET", testSecret)

		// when
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		require.NoError(t, err)
		assert.Equal(t, ":8181", cfg.Http.Addr)
		assert.Equal(t, 15*time.Second, cfg.Http.ReadTimeout)
		assert.Equal(t, AuthModeJWT, cfg.Auth.Mode)
		assert.Equal(t, "tradie", cfg.Database.Schema)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "common", cfg.Outlook.Tenant)
	})

	t.Run("should override defaults from yaml file", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := "db:\n  host: db.internal\n  port: 6543\nauth:\n  mode: header\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6543, cfg.Database.Port)
		assert.Equal(t, AuthModeHeader, cfg.Auth.Mode)
		assert.Equal(t, "tradie", cfg.Database.Name)
	})

	t.Run("should override file values from environment", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		require.NoError(t, os.WriteFile(path, []byte("db:\n  host: db.internal\n"), 0o600))
		t.Setenv("TRADIE_DB_HOST", "db.from.env")
		t.Setenv("TRADIE_AUTH_JWTSECRET", testSecret)
		t.Setenv("TRADIE_GOOGLE_CLIENTID", "google-client")
		t.Setenv("TRADIE_HTTP_CORSORIGINS", "https://a.example,https://b.example")

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.Equal(t, "db.from.env", cfg.Database.Host)
		assert.Equal(t, "google-client", cfg.Google.ClientId)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Http.CorsOrigins)
		assert.Equal(t, testSecret, cfg.Auth.JwtSecret)
	})

	t.Run("should reject jwt mode without a secret", func(t *testing.T) {
		// when
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("should reject a short jwt secret", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  mode: jwt\n  jwtsecret: change-me\n"), 0o600))

		// when
		_, err := Load(path)

		// then
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("should reject an unknown auth mode", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  mode: none\n"), 0o600))

		// when
		_, err := Load(path)

		// then
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("should not require a secret in header mode", func(t *testing.T) {
		// given
		t.Setenv("TRADIE_AUTH_MODE", "header")

		// when
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		require.NoError(t, err)
		assert.Empty(t, cfg.Auth.JwtSecret)
	})
}
