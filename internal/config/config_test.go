package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default configuration must validate: %v", err)
	}

	if config.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", config.HTTP.Port)
	}
	if config.Collab.CursorInterval != 80*time.Millisecond {
		t.Errorf("Expected 80ms cursor interval, got %v", config.Collab.CursorInterval)
	}
	if config.Collab.LogMaxEntries != 1024 {
		t.Errorf("Expected log cap 1024, got %d", config.Collab.LogMaxEntries)
	}
	if config.Redis.URL != "" {
		t.Errorf("Cache must be off by default, got %q", config.Redis.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero cursor interval", func(c *Config) { c.Collab.CursorInterval = 0 }},
		{"zero log entries", func(c *Config) { c.Collab.LogMaxEntries = 0 }},
		{"zero log TTL", func(c *Config) { c.Collab.LogTTL = 0 }},
		{"zero inbound buffer", func(c *Config) { c.Collab.InboundBuffer = 0 }},
		{"cache on without TTL", func(c *Config) {
			c.Redis.URL = "redis://localhost:6379"
			c.Redis.CacheTTL = 0
		}},
		{"missing collab section", func(c *Config) { c.Collab = nil }},
		{"missing auth section", func(c *Config) { c.Auth = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			if err := config.Validate(); err == nil {
				t.Errorf("Expected validation failure for %s", tc.name)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "9090")
	t.Setenv("SYNCBOARD_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("SYNCBOARD_COLLAB_CURSOR_INTERVAL", "120ms")
	t.Setenv("SYNCBOARD_COLLAB_LOG_MAX_ENTRIES", "512")
	t.Setenv("SYNCBOARD_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SYNCBOARD_JWT_SECRET", "test-secret")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected env database path, got %s", config.Database.Path)
	}
	if config.Collab.CursorInterval != 120*time.Millisecond {
		t.Errorf("Expected 120ms cursor interval, got %v", config.Collab.CursorInterval)
	}
	if config.Collab.LogMaxEntries != 512 {
		t.Errorf("Expected log cap 512, got %d", config.Collab.LogMaxEntries)
	}
	if config.Redis.URL != "redis://cache:6379/0" {
		t.Errorf("Expected env redis URL, got %s", config.Redis.URL)
	}
	if config.Auth.JWTSecret != "test-secret" {
		t.Errorf("Expected env JWT secret, got %q", config.Auth.JWTSecret)
	}
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "not-a-number")
	t.Setenv("SYNCBOARD_COLLAB_LOG_TTL", "forever")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("Unparseable port must keep the default, got %d", config.HTTP.Port)
	}
	if config.Collab.LogTTL != 5*time.Minute {
		t.Errorf("Unparseable TTL must keep the default, got %v", config.Collab.LogTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"database": {"path": "/data/collab.db", "timeout": "10s"},
		"http": {"port": 9000, "host": "127.0.0.1"},
		"collab": {"cursor_interval": "50ms", "log_max_entries": 2048, "log_ttl": "10m"},
		"redis": {"url": "redis://localhost:6379", "cache_ttl": "1m"},
		"auth": {"jwt_secret": "file-secret"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Database.Path != "/data/collab.db" {
		t.Errorf("Expected file database path, got %s", config.Database.Path)
	}
	if config.Database.Timeout != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", config.Database.Timeout)
	}
	if config.HTTP.Port != 9000 || config.HTTP.Host != "127.0.0.1" {
		t.Errorf("Expected file HTTP settings, got %s:%d", config.HTTP.Host, config.HTTP.Port)
	}
	if config.Collab.CursorInterval != 50*time.Millisecond {
		t.Errorf("Expected 50ms cursor interval, got %v", config.Collab.CursorInterval)
	}
	if config.Collab.LogMaxEntries != 2048 {
		t.Errorf("Expected log cap 2048, got %d", config.Collab.LogMaxEntries)
	}
	if config.Redis.URL != "redis://localhost:6379" {
		t.Errorf("Expected file redis URL, got %s", config.Redis.URL)
	}
	if config.Auth.JWTSecret != "file-secret" {
		t.Errorf("Expected file JWT secret, got %q", config.Auth.JWTSecret)
	}
	// Untouched sections keep defaults
	if config.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("Expected default ping interval, got %v", config.WebSocket.PingInterval)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("SYNCBOARD_HTTP_PORT", "9090")

	// Without a file the environment wins
	config := LoadConfigWithPrecedence("")
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected env port 9090, got %d", config.HTTP.Port)
	}

	// A file overrides the environment
	content := `{"http": {"port": 9000}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	config = LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 9000 {
		t.Errorf("Expected file port 9000, got %d", config.HTTP.Port)
	}

	// A broken file falls back to the environment
	config = LoadConfigWithPrecedence("/nonexistent.json")
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected env fallback port 9090, got %d", config.HTTP.Port)
	}
}
