package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8083, cfg.Port)
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 64, cfg.WSSendBuffer)
	require.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "file:inbox.db")
	t.Setenv("PORT", "9000")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite3", cfg.DBDriver)
	require.Equal(t, "file:inbox.db", cfg.DBDSN)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{JWTSecret: "s", DBDSN: "x", DBDriver: "mysql", WSSendBuffer: 1}
	require.ErrorContains(t, cfg.Validate(), "mysql")
}

func TestOrigins(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://app.example.com, ,https://admin.example.com "}
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Origins())
	require.Empty(t, (&Config{}).Origins())
}
