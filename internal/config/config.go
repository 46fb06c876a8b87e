package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator; clean separation between configuration and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Collab    *CollabConfig    `json:"collab"`
	Redis     *RedisConfig     `json:"redis"`
	Auth      *AuthConfig      `json:"auth"`
}

// DatabaseConfig supports SQLite optimizations
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// CollabConfig tunes room behavior
// FUNCTIONAL DISCOVERY: Cursor throttling and log retention dominate memory
// and bandwidth in busy rooms, so both are deploy-time tunable
type CollabConfig struct {
	CursorInterval time.Duration `json:"cursor_interval"`
	LogMaxEntries  int           `json:"log_max_entries"`
	LogTTL         time.Duration `json:"log_ttl"`
	EvictInterval  time.Duration `json:"evict_interval"`
	InboundBuffer  int           `json:"inbound_buffer"`
}

// RedisConfig controls the optional snapshot cache
type RedisConfig struct {
	URL      string        `json:"url"` // empty disables the cache
	CacheTTL time.Duration `json:"cache_ttl"`
}

// AuthConfig selects the identity provider
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./syncboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Collab: &CollabConfig{
			CursorInterval: 80 * time.Millisecond,
			LogMaxEntries:  1024,
			LogTTL:         5 * time.Minute,
			EvictInterval:  30 * time.Second,
			InboundBuffer:  256,
		},
		Redis: &RedisConfig{
			URL:      "", // cache off unless configured
			CacheTTL: 5 * time.Minute,
		},
		Auth: &AuthConfig{
			JWTSecret: "",
		},
	}
}

// Validate prevents invalid system configurations from starting
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Collab == nil {
		return fmt.Errorf("collab configuration is required")
	}
	if c.Collab.CursorInterval <= 0 {
		return fmt.Errorf("cursor interval must be positive")
	}
	if c.Collab.LogMaxEntries <= 0 {
		return fmt.Errorf("log max entries must be positive")
	}
	if c.Collab.LogTTL <= 0 {
		return fmt.Errorf("log TTL must be positive")
	}
	if c.Collab.EvictInterval <= 0 {
		return fmt.Errorf("evict interval must be positive")
	}
	if c.Collab.InboundBuffer <= 0 {
		return fmt.Errorf("inbound buffer must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("redis cache TTL must be positive when caching is enabled")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	return nil
}

// LoadFromEnv overrides defaults with SYNCBOARD_* environment variables
// FUNCTIONAL DISCOVERY: Environment configuration enables containerized
// deployments without config file mounts
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("SYNCBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("SYNCBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("SYNCBOARD_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("SYNCBOARD_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("SYNCBOARD_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("SYNCBOARD_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if pingInterval := os.Getenv("SYNCBOARD_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("SYNCBOARD_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("SYNCBOARD_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("SYNCBOARD_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if cursorInterval := os.Getenv("SYNCBOARD_COLLAB_CURSOR_INTERVAL"); cursorInterval != "" {
		if interval, err := time.ParseDuration(cursorInterval); err == nil {
			config.Collab.CursorInterval = interval
		}
	}
	if logMax := os.Getenv("SYNCBOARD_COLLAB_LOG_MAX_ENTRIES"); logMax != "" {
		if entries, err := strconv.Atoi(logMax); err == nil {
			config.Collab.LogMaxEntries = entries
		}
	}
	if logTTL := os.Getenv("SYNCBOARD_COLLAB_LOG_TTL"); logTTL != "" {
		if ttl, err := time.ParseDuration(logTTL); err == nil {
			config.Collab.LogTTL = ttl
		}
	}
	if evictInterval := os.Getenv("SYNCBOARD_COLLAB_EVICT_INTERVAL"); evictInterval != "" {
		if interval, err := time.ParseDuration(evictInterval); err == nil {
			config.Collab.EvictInterval = interval
		}
	}

	if redisURL := os.Getenv("SYNCBOARD_REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}
	if cacheTTL := os.Getenv("SYNCBOARD_REDIS_CACHE_TTL"); cacheTTL != "" {
		if ttl, err := time.ParseDuration(cacheTTL); err == nil {
			config.Redis.CacheTTL = ttl
		}
	}

	if secret := os.Getenv("SYNCBOARD_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing handles duration
// strings like "30s" in config files
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Collab    *CollabConfigFile    `json:"collab"`
	Redis     *RedisConfigFile     `json:"redis"`
	Auth      *AuthConfig          `json:"auth"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type CollabConfigFile struct {
	CursorInterval string `json:"cursor_interval"`
	LogMaxEntries  int    `json:"log_max_entries"`
	LogTTL         string `json:"log_ttl"`
	EvictInterval  string `json:"evict_interval"`
	InboundBuffer  int    `json:"inbound_buffer"`
}

type RedisConfigFile struct {
	URL      string `json:"url"`
	CacheTTL string `json:"cache_ttl"`
}

// LoadFromFile reads and validates a JSON configuration file
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Collab != nil {
		if configFile.Collab.LogMaxEntries > 0 {
			config.Collab.LogMaxEntries = configFile.Collab.LogMaxEntries
		}
		if configFile.Collab.InboundBuffer > 0 {
			config.Collab.InboundBuffer = configFile.Collab.InboundBuffer
		}
		if configFile.Collab.CursorInterval != "" {
			if interval, err := time.ParseDuration(configFile.Collab.CursorInterval); err == nil {
				config.Collab.CursorInterval = interval
			}
		}
		if configFile.Collab.LogTTL != "" {
			if ttl, err := time.ParseDuration(configFile.Collab.LogTTL); err == nil {
				config.Collab.LogTTL = ttl
			}
		}
		if configFile.Collab.EvictInterval != "" {
			if interval, err := time.ParseDuration(configFile.Collab.EvictInterval); err == nil {
				config.Collab.EvictInterval = interval
			}
		}
	}

	if configFile.Redis != nil {
		config.Redis.URL = configFile.Redis.URL
		if configFile.Redis.CacheTTL != "" {
			if ttl, err := time.ParseDuration(configFile.Redis.CacheTTL); err == nil {
				config.Redis.CacheTTL = ttl
			}
		}
	}

	if configFile.Auth != nil {
		config.Auth = configFile.Auth
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment > defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// File errors fall back to environment/defaults
	}

	return config
}
