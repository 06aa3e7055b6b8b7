// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Rules    RulesConfig
	Audit    AuditConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"90s"`
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 25MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent is the maximum number of workbooks parsed in parallel (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a parse slot (default: 15s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"15s"`

	// PreviewRows caps how many filtered rows the table viewer renders (default: 500)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"500"`
}

// SessionConfig holds interactive session settings.
type SessionConfig struct {
	// CookieName is the name of the session cookie (default: seace_session)
	CookieName string `env:"SESSION_COOKIE_NAME" default:"seace_session"`

	// IdleTTL discards sessions (and their tables) after this much inactivity (default: 2h)
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" default:"2h"`

	// SweepInterval is how often expired sessions are removed (default: 10m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"10m"`

	// SecureCookie sets the Secure flag on the session cookie (default: false)
	SecureCookie bool `env:"SESSION_SECURE_COOKIE" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects /api routes with the X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RulesConfig points at the header rules file.
type RulesConfig struct {
	// File is a YAML rules file; empty uses the built-in profiles
	File string `env:"RULES_FILE"`

	// Profile overrides the rules file's default profile
	Profile string `env:"RULES_PROFILE"`
}

// AuditConfig holds the optional export audit log database.
type AuditConfig struct {
	// URL is the PostgreSQL connection string; empty disables the audit log
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// Enabled reports whether an audit database is configured.
func (c AuditConfig) Enabled() bool {
	return c.URL != ""
}

// ArchiveConfig holds the optional MinIO bucket for archived exports.
type ArchiveConfig struct {
	// Endpoint is host:port of the S3-compatible server; empty disables archiving
	Endpoint string `env:"ARCHIVE_ENDPOINT"`

	AccessKey string `env:"ARCHIVE_ACCESS_KEY"`
	SecretKey string `env:"ARCHIVE_SECRET_KEY"`

	// Bucket receives the exported workbooks (default: seace-exports)
	Bucket string `env:"ARCHIVE_BUCKET" default:"seace-exports"`

	// UseSSL selects https for the endpoint (default: false)
	UseSSL bool `env:"ARCHIVE_USE_SSL" default:"false"`

	// Region skips the bucket location lookup when signing (default: us-east-1)
	Region string `env:"ARCHIVE_REGION" default:"us-east-1"`

	// LinkExpiry is how long presigned download links stay valid (default: 168h)
	LinkExpiry time.Duration `env:"ARCHIVE_LINK_EXPIRY" default:"168h"`
}

// Enabled reports whether an archive endpoint is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
