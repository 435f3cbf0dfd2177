package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "http rps must be > 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 },
		},
		{
			name:   "http burst must be > 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.Burst = 0 },
		},
		{
			name:   "http max concurrent must be >= 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 },
		},
		{
			name:   "ws messages per second must be > 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 },
		},
		{
			name:   "ws burst must be > 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 },
		},
		{
			name:   "ws max message size must be >= 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 },
		},
		{
			name:   "pong timeout must exceed ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
		},
		{
			name:   "signal path must be absolute",
			mutate: func(c *Config) { c.Signal.Path = "ws" },
		},
		{
			name:   "ice server needs urls",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{Username: "u"}} },
		},
		{
			name:   "ice url needs a stun or turn scheme",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"http://stun.example.com:3478"}}} },
		},
		{
			name: "second ice url is checked too",
			mutate: func(c *Config) {
				c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"turn:turn.example.com:3478", "turn:"}}}
			},
		},
		{
			name:   "session retries must be >= 1",
			mutate: func(c *Config) { c.Session.RetryAttempts = 0 },
		},
		{
			name: "redis channel required when enabled",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Channel = ""
			},
		},
		{
			name:   "jwt secret required",
			mutate: func(c *Config) { c.Auth.JWTSecret = "" },
		},
		{
			name: "tracing sample rate bounded",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "jaeger url must be http",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.JaegerURL = "localhost:14268"
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/ws", cfg.Signal.Path)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := []byte(`
server:
  address: ":9000"
signal:
  ping_interval: 10s
  pong_timeout: 20s
webrtc:
  ice_servers:
    - urls: ["turn:turn.example.com:3478"]
      username: alice
      credential: secret
session:
  cache_ttl: 5s
auth:
  allow_guests: false
`)
	require.NoError(t, os.WriteFile(path, yamlData, 0o600))

	t.Setenv("CALLHUB_LOG_LEVEL", "debug")
	t.Setenv("CALLHUB_ALLOW_GUESTS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 5*time.Second, cfg.Session.CacheTTL)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, "alice", cfg.WebRTC.ICEServers[0].Username)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Auth.AllowGuests)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_AcceptsICEURLForms(t *testing.T) {
	cfg := validBaseConfig()
	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302", "stuns:stun.example.com"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"}, Username: "u", Credential: "p"},
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.JaegerURL = "http://jaeger:14268/api/traces"

	require.NoError(t, cfg.Validate())
}
