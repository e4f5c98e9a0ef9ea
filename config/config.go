package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directories
	AppDataDir   string // database, transcripts cache, uploaded images
	DatabasePath string

	// Bridge identity / shared-secret auth (used by hook clients)
	BridgeSecret string

	// Password auth (single operator account)
	AuthUsername string
	AuthPassword string

	// Bridge-issued bearer tokens for the UI surface
	JWTSecret     string
	JWTExpiryHours int

	// OAuth/OIDC (optional alternative to password auth)
	AuthMode              string
	OAuthClientID         string
	OAuthClientSecret     string
	OAuthIssuerURL        string
	OAuthRedirectURI      string
	OAuthJWKSURL          string
	OAuthExpectedUsername string

	// Agent process spawning
	AgentBinary   string
	AgentExecMode bool
	AgentUsePTY   bool

	// Timeouts
	DefaultTimeout    time.Duration
	PermissionTimeout time.Duration
	NotifyTimeout     time.Duration

	// Web UI
	WebUIURL string

	// Bot gateway (optional external process owning chat-network credentials)
	BotGatewayURL string

	// Filesystem browser
	EnableDirectoryBrowser bool
	ProjectDirs            []string

	// Logging
	LogLevel string
	LogFile  string

	// Debug settings
	DBLogQueries bool
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	appDataDir := getEnv("APP_DATA_DIR", "./.bridge")

	return &Config{
		Port: getEnvInt("BRIDGE_PORT", 8787),
		Host: getEnv("BRIDGE_HOST", "0.0.0.0"),
		Env:  getEnv("ENV", "development"),

		AppDataDir:   appDataDir,
		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(appDataDir, "bridge.sqlite")),

		BridgeSecret: getEnv("BRIDGE_SECRET", ""),

		AuthUsername: getEnv("AUTH_USERNAME", ""),
		AuthPassword: getEnv("AUTH_PASSWORD", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTExpiryHours: getEnvInt("JWT_EXPIRY_HOURS", 24*7),

		AuthMode:              getEnv("AUTH_MODE", "none"),
		OAuthClientID:         getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret:     getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthIssuerURL:        getEnv("OAUTH_ISSUER_URL", ""),
		OAuthRedirectURI:      getEnv("OAUTH_REDIRECT_URI", ""),
		OAuthJWKSURL:          getEnv("OAUTH_JWKS_URL", ""),
		OAuthExpectedUsername: getEnv("OAUTH_EXPECTED_USERNAME", ""),

		AgentBinary:   getEnv("AGENT_BINARY", "agent"),
		AgentExecMode: getEnvBool("AGENT_EXEC_MODE", true),
		AgentUsePTY:   getEnvBool("AGENT_USE_PTY", false),

		DefaultTimeout:    getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		PermissionTimeout: getEnvDuration("PERMISSION_TIMEOUT", 5*time.Minute),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),

		WebUIURL: getEnv("WEB_UI_URL", "http://localhost:5173"),

		BotGatewayURL: getEnv("BOT_GATEWAY_URL", ""),

		EnableDirectoryBrowser: getEnvBool("ENABLE_DIRECTORY_BROWSER", false),
		ProjectDirs:            getEnvList("PROJECT_DIRS", nil),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DBLogQueries: getEnvBool("DB_LOG_QUERIES", false),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// GetAppDataDir returns the app data directory path
func (c *Config) GetAppDataDir() string {
	return c.AppDataDir
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
