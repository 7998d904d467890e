package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8081", cfg.Server.Addr)
	require.Equal(t, "data/auth.db", cfg.Database.Path)
	require.Empty(t, cfg.Auth.JWTSecret)
	require.Empty(t, cfg.Remote.AuthURL)
	require.Equal(t, 5, cfg.Remote.TimeoutSeconds)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AUTH_SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("AUTH_AUTH_JWTSECRET", "sekret")
	t.Setenv("AUTH_REMOTE_AUTHURL", "http://auth.internal:8081")
	t.Setenv("AUTH_REMOTE_TIMEOUTSECONDS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, "sekret", cfg.Auth.JWTSecret)
	require.Equal(t, "http://auth.internal:8081", cfg.Remote.AuthURL)
	require.Equal(t, 2, cfg.Remote.TimeoutSeconds)
}
