package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Realtime event server connection
	Realtime RealtimeConfig

	// Voice signaling relay and peer transport
	Signaling SignalingConfig

	// Aggregated metrics REST API
	Metrics MetricsConfig

	// Durable key/value storage
	Storage StorageConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// RealtimeConfig holds the event server connection settings
type RealtimeConfig struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	DialTimeout          time.Duration
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	PongWait             time.Duration
}

// SignalingConfig holds the voice session settings
type SignalingConfig struct {
	RelayURL          string
	ICEServers        []string
	DataChannel       string
	RequestTimeout    time.Duration
	DisconnectTimeout time.Duration
	GatherTimeout     time.Duration
	AudioSourcePath   string // Ogg/Opus file played as the local track; silence when empty
	RecordingPath     string // Directory for remote audio recordings; discarded when empty
}

// MetricsConfig holds the metrics API settings
type MetricsConfig struct {
	APIURL   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// StorageConfig holds durable storage configuration
type StorageConfig struct {
	Driver          string // sqlite, postgres, memory
	SQLitePath      string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SeedAuthToken   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	CallRPS           float64 // Stricter limit for call control endpoints
	CallBurst         int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	AddSource bool
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables. envFile names an
// optional dotenv file; an empty name means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file found, using system environment variables", envFile)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8090"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Realtime: RealtimeConfig{
			URL:                  os.Getenv("REALTIME_URL"),
			MaxReconnectAttempts: getIntOrDefault("REALTIME_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       getDurationOrDefault("REALTIME_RECONNECT_DELAY", time.Second),
			DialTimeout:          getDurationOrDefault("REALTIME_DIAL_TIMEOUT", 10*time.Second),
			WriteTimeout:         getDurationOrDefault("REALTIME_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:         getDurationOrDefault("REALTIME_PING_INTERVAL", 25*time.Second),
			PongWait:             getDurationOrDefault("REALTIME_PONG_WAIT", 60*time.Second),
		},
		Signaling: SignalingConfig{
			RelayURL:          os.Getenv("SIGNALING_RELAY_URL"),
			ICEServers:        getStringSliceOrDefault("SIGNALING_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
			DataChannel:       getEnvOrDefault("SIGNALING_DATA_CHANNEL", "oai-events"),
			RequestTimeout:    getDurationOrDefault("SIGNALING_REQUEST_TIMEOUT", 30*time.Second),
			DisconnectTimeout: getDurationOrDefault("SIGNALING_DISCONNECT_TIMEOUT", 5*time.Second),
			GatherTimeout:     getDurationOrDefault("SIGNALING_ICE_GATHER_TIMEOUT", 10*time.Second),
			AudioSourcePath:   os.Getenv("SIGNALING_AUDIO_SOURCE"),
			RecordingPath:     os.Getenv("SIGNALING_RECORDING_DIR"),
		},
		Metrics: MetricsConfig{
			APIURL:   os.Getenv("METRICS_API_URL"),
			Timeout:  getDurationOrDefault("METRICS_API_TIMEOUT", 15*time.Second),
			CacheTTL: getDurationOrDefault("METRICS_CACHE_TTL", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver:          getEnvOrDefault("STORAGE_DRIVER", "sqlite"),
			SQLitePath:      getEnvOrDefault("STORAGE_SQLITE_PATH", "liveops.db"),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SeedAuthToken:   os.Getenv("LIVEOPS_AUTH_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 8*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 20),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 40),
			CallRPS:           getFloatOrDefault("RATE_LIMIT_CALL_RPS", 1),
			CallBurst:         getIntOrDefault("RATE_LIMIT_CALL_BURST", 3),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:     getEnvOrDefault("LOG_LEVEL", "info"),
			Format:    getEnvOrDefault("LOG_FORMAT", "json"),
			AddSource: getBoolOrDefault("LOG_ADD_SOURCE", false),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "liveops"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	if c.Realtime.URL == "" {
		errs = append(errs, "REALTIME_URL is required")
	} else if !hasScheme(c.Realtime.URL, "ws", "wss") {
		errs = append(errs, "REALTIME_URL must be a ws:// or wss:// URL")
	}

	if c.Signaling.RelayURL == "" {
		errs = append(errs, "SIGNALING_RELAY_URL is required")
	} else if !hasScheme(c.Signaling.RelayURL, "http", "https") {
		errs = append(errs, "SIGNALING_RELAY_URL must be an http(s) URL")
	}

	if c.Metrics.APIURL == "" {
		errs = append(errs, "METRICS_API_URL is required")
	} else if !hasScheme(c.Metrics.APIURL, "http", "https") {
		errs = append(errs, "METRICS_API_URL must be an http(s) URL")
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "STORAGE_SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	case "memory":
	default:
		errs = append(errs, "STORAGE_DRIVER must be one of sqlite, postgres, memory")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}

		if c.Storage.Driver == "memory" {
			errs = append(errs, "STORAGE_DRIVER=memory is not allowed in production")
		}
	}

	// Logical validations
	if c.Realtime.MaxReconnectAttempts < 0 {
		errs = append(errs, "REALTIME_MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	if c.Realtime.ReconnectDelay <= 0 {
		errs = append(errs, "REALTIME_RECONNECT_DELAY must be positive")
	}

	if len(c.Signaling.ICEServers) == 0 {
		errs = append(errs, "SIGNALING_ICE_SERVERS must list at least one server")
	}

	if c.Storage.MaxIdleConns > c.Storage.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Helper functions

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, Realtime: %s, Relay: %s, Metrics: %s, Storage: %s(%s), JWT: [REDACTED], RateLimit: %v, Environment: %s}",
		c.Server.Port,
		c.Realtime.URL,
		c.Signaling.RelayURL,
		c.Metrics.APIURL,
		c.Storage.Driver,
		redactURL(c.Storage.DatabaseURL),
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	// Very basic redaction - in production you'd want something more robust
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
