package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode controls which features are enabled.
// - proxy: UI pages + /api proxy only, no telemetry
// - monitor (default): proxy + api + events + metrics + storage
type Mode string

const (
	ModeProxy   Mode = "proxy"
	ModeMonitor Mode = "monitor" // default
)

// StorageType controls the storage backend.
type StorageType string

const (
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
	StorageOff    StorageType = "off"
)

// Variant names one of the UI pages.
type Variant string

const (
	VariantUpload  Variant = "upload"
	VariantRecords Variant = "records"
)

// Features derived from MODE - centralized feature gating.
type Features struct {
	API     bool
	Events  bool
	Metrics bool
	Storage bool
}

// Config contains all runtime configuration for the console.
type Config struct {
	// Core
	Mode       Mode
	ListenAddr string
	BackendURL string
	LogLevel   string

	// ConsoleAPIURL is the origin the UI controllers call /api/* on.
	// Empty means the console's own listener, so calls pass through the dev proxy.
	ConsoleAPIURL string

	// Dev proxy
	APIPrefix         string
	ProxyStripPrefix  bool
	ProxyChangeOrigin bool
	HealthPath        string

	// UI
	Variants       []Variant
	BackendTimeout time.Duration
	UploadMaxBytes int64
	SessionTTL     time.Duration

	// Storage (enabled when MODE=monitor unless explicitly disabled)
	Storage        StorageType
	StoragePath    string
	StorageMaxRows int

	// Health
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	// HTTP
	CORSAllowOrigin string
	FlushInterval   time.Duration
}

// Features returns the feature flags derived from the current MODE.
func (c *Config) Features() Features {
	if c.Mode == ModeProxy {
		return Features{}
	}
	return Features{
		API:     true,
		Events:  true,
		Metrics: true,
		Storage: c.Storage != StorageOff,
	}
}

// HasVariant reports whether the given UI page is served.
func (c *Config) HasVariant(v Variant) bool {
	for _, x := range c.Variants {
		if x == v {
			return true
		}
	}
	return false
}

// APIBaseURL returns the origin the UI controllers send /api/* requests to.
func (c *Config) APIBaseURL() string {
	if c.ConsoleAPIURL != "" {
		return c.ConsoleAPIURL
	}
	host, port := splitListenAddr(c.ListenAddr)
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + port
}

// Load reads an optional .env file, parses env vars and returns a validated Config.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	mode := Mode(getEnvString("MODE", string(ModeMonitor)))

	var storageDefault StorageType
	if mode == ModeProxy {
		storageDefault = StorageOff
	} else {
		storageDefault = StorageSQLite
	}

	cfg := Config{
		// Core
		Mode:          mode,
		ListenAddr:    getEnvString("LISTEN_ADDR", ":3000"),
		BackendURL:    getEnvString("BACKEND_URL", "http://nginx-service:80"),
		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		ConsoleAPIURL: getEnvString("CONSOLE_API_URL", ""),

		// Dev proxy
		APIPrefix:         getEnvString("API_PREFIX", "/api"),
		ProxyStripPrefix:  getEnvBool("PROXY_STRIP_PREFIX", true),
		ProxyChangeOrigin: getEnvBool("PROXY_CHANGE_ORIGIN", true),
		HealthPath:        getEnvString("HEALTH_PATH", "/health"),

		// UI
		Variants:       getEnvVariants("VARIANTS", []Variant{VariantUpload, VariantRecords}),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 0),
		UploadMaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 32*1024*1024),
		SessionTTL:     getEnvDuration("SESSION_TTL", 30*time.Minute),

		// Storage
		Storage:        StorageType(getEnvString("STORAGE", string(storageDefault))),
		StoragePath:    getEnvString("STORAGE_PATH", "/data/predict-console.sqlite"),
		StorageMaxRows: getEnvInt("STORAGE_MAX_ROWS", 3000),

		// Health
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		HealthCheckTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),

		// HTTP
		CORSAllowOrigin: getEnvString("CORS_ALLOW_ORIGIN", ""),
		FlushInterval:   getEnvDuration("FLUSH_INTERVAL", 100*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeProxy, ModeMonitor:
		// ok
	default:
		return fmt.Errorf("invalid MODE: %q (must be proxy|monitor)", c.Mode)
	}

	switch c.Storage {
	case StorageSQLite, StorageMemory, StorageOff:
		// ok
	default:
		return fmt.Errorf("invalid STORAGE: %q (must be sqlite|memory|off)", c.Storage)
	}

	if c.StorageMaxRows < 100 {
		return fmt.Errorf("STORAGE_MAX_ROWS must be >= 100")
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("BACKEND_URL must include a host")
	}

	if c.ConsoleAPIURL != "" {
		if _, err := url.Parse(c.ConsoleAPIURL); err != nil {
			return fmt.Errorf("invalid CONSOLE_API_URL: %w", err)
		}
	}

	if !strings.HasPrefix(c.APIPrefix, "/") || c.APIPrefix == "/" || strings.HasSuffix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with / and not end with /")
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("HEALTH_PATH must start with /")
	}

	if len(c.Variants) == 0 {
		return fmt.Errorf("VARIANTS must not be empty")
	}
	for _, v := range c.Variants {
		switch v {
		case VariantUpload, VariantRecords:
			// ok
		default:
			return fmt.Errorf("invalid VARIANTS entry: %q (must be upload|records)", v)
		}
	}

	if c.BackendTimeout < 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be >= 0")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}

	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be > 0")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}

	return nil
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func getEnvVariants(key string, def []Variant) []Variant {
	if v, ok := os.LookupEnv(key); ok {
		if parsed := parseVariants(v); len(parsed) > 0 {
			return parsed
		}
	}
	return def
}

func parseVariants(s string) []Variant {
	parts := strings.Split(s, ",")
	out := make([]Variant, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, Variant(p))
	}
	return out
}

func splitListenAddr(addr string) (host, port string) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, "80"
	}
	host, port = addr[:i], addr[i+1:]
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if port == "" {
		port = "80"
	}
	return host, port
}
