package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REALTIME_URL", "ws://localhost:4000/realtime")
	t.Setenv("SIGNALING_RELAY_URL", "http://localhost:4000")
	t.Setenv("METRICS_API_URL", "http://localhost:4000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Signaling.ICEServers)
	assert.Equal(t, "oai-events", cfg.Signaling.DataChannel)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "liveops", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REALTIME_MAX_RECONNECT_ATTEMPTS", "9")
	t.Setenv("REALTIME_RECONNECT_DELAY", "250ms")
	t.Setenv("SIGNALING_ICE_SERVERS", "stun:a.example:3478, stun:b.example:3478")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.ReconnectDelay)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.Signaling.ICEServers)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Realtime:  RealtimeConfig{URL: "http://wrong-scheme", ReconnectDelay: time.Second},
		Signaling: SignalingConfig{ICEServers: []string{"stun:x"}},
		Storage:   StorageConfig{Driver: "postgres"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "JWT_SECRET is required")
	assert.Contains(t, msg, "REALTIME_URL must be a ws:// or wss:// URL")
	assert.Contains(t, msg, "SIGNALING_RELAY_URL is required")
	assert.Contains(t, msg, "METRICS_API_URL is required")
	assert.Contains(t, msg, "DATABASE_URL is required for the postgres driver")
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{
		Realtime:  RealtimeConfig{URL: "wss://events.example.com", ReconnectDelay: time.Second},
		Signaling: SignalingConfig{RelayURL: "https://api.example.com", ICEServers: []string{"stun:x"}},
		Metrics:   MetricsConfig{APIURL: "https://api.example.com"},
		Storage:   StorageConfig{Driver: "memory"},
		JWT:       JWTConfig{Secret: "short"},
		App:       AppConfig{Environment: "production"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be at least 32 characters in production")
	assert.Contains(t, err.Error(), "WS_ALLOWED_ORIGINS must be set in production")
	assert.Contains(t, err.Error(), "STORAGE_DRIVER=memory is not allowed in production")
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := &Config{
		JWT:     JWTConfig{Secret: "super-secret"},
		Storage: StorageConfig{Driver: "postgres", DatabaseURL: "postgres://user:pw@db:5432/liveops"},
	}

	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "user:pw")
	assert.Contains(t, s, "@db:5432/liveops")
}
