package config

import (
	"os"
	"testing"
	"time"
)

func TestModeDefault(t *testing.T) {
	// Clear any existing env vars
	os.Unsetenv("MODE")
	os.Unsetenv("STORAGE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != ModeMonitor {
		t.Errorf("Default mode = %v, want %v", cfg.Mode, ModeMonitor)
	}
	if cfg.Storage != StorageSQLite {
		t.Errorf("Default storage = %v, want %v", cfg.Storage, StorageSQLite)
	}
}

func TestModeProxy(t *testing.T) {
	os.Setenv("MODE", "proxy")
	os.Unsetenv("STORAGE")
	defer os.Unsetenv("MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage != StorageOff {
		t.Errorf("Storage for MODE=proxy = %v, want %v", cfg.Storage, StorageOff)
	}

	features := cfg.Features()
	if features.API {
		t.Error("Features.API should be false for MODE=proxy")
	}
	if features.Metrics {
		t.Error("Features.Metrics should be false for MODE=proxy")
	}
	if features.Storage {
		t.Error("Features.Storage should be false for MODE=proxy")
	}
}

func TestDevProxyDefaults(t *testing.T) {
	os.Unsetenv("API_PREFIX")
	os.Unsetenv("PROXY_STRIP_PREFIX")
	os.Unsetenv("PROXY_CHANGE_ORIGIN")
	os.Unsetenv("BACKEND_TIMEOUT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPrefix != "/api" {
		t.Errorf("APIPrefix = %q, want /api", cfg.APIPrefix)
	}
	if !cfg.ProxyStripPrefix {
		t.Error("ProxyStripPrefix should default to true")
	}
	if !cfg.ProxyChangeOrigin {
		t.Error("ProxyChangeOrigin should default to true")
	}
	if cfg.BackendTimeout != 0 {
		t.Errorf("BackendTimeout = %v, want 0 (no timeout)", cfg.BackendTimeout)
	}
}

func TestVariantsFromEnv(t *testing.T) {
	t.Setenv("VARIANTS", " Records , ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Variants) != 1 || cfg.Variants[0] != VariantRecords {
		t.Fatalf("Variants = %v, want [records]", cfg.Variants)
	}
	if cfg.HasVariant(VariantUpload) {
		t.Error("upload variant should be disabled")
	}
}

func TestInvalidVariantRejected(t *testing.T) {
	t.Setenv("VARIANTS", "upload,camera")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown variant")
	}
}

func TestInvalidModeRejected(t *testing.T) {
	os.Setenv("MODE", "invalid")
	defer os.Unsetenv("MODE")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for invalid MODE")
	}
}

func TestInvalidBackendURLRejected(t *testing.T) {
	t.Setenv("BACKEND_URL", "nginx-service:80")

	if _, err := Load(); err == nil {
		t.Error("Expected error for BACKEND_URL without scheme")
	}
}

func TestInvalidAPIPrefixRejected(t *testing.T) {
	for _, prefix := range []string{"api", "/", "/api/"} {
		t.Run(prefix, func(t *testing.T) {
			t.Setenv("API_PREFIX", prefix)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for API_PREFIX=%q", prefix)
			}
		})
	}
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "15s")
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BackendTimeout != 15*time.Second {
		t.Errorf("BackendTimeout = %v, want 15s", cfg.BackendTimeout)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want default 30m on parse failure", cfg.SessionTTL)
	}
}

func TestAPIBaseURL(t *testing.T) {
	tests := []struct {
		listen  string
		console string
		want    string
	}{
		{":3000", "", "http://127.0.0.1:3000"},
		{"0.0.0.0:8080", "", "http://127.0.0.1:8080"},
		{"localhost:9000", "", "http://localhost:9000"},
		{"[::]:3000", "", "http://127.0.0.1:3000"},
		{":3000", "http://frontend:3000", "http://frontend:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.listen+"|"+tt.console, func(t *testing.T) {
			cfg := Config{ListenAddr: tt.listen, ConsoleAPIURL: tt.console}
			if got := cfg.APIBaseURL(); got != tt.want {
				t.Errorf("APIBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeaturesMatrix(t *testing.T) {
	tests := []struct {
		mode        Mode
		storage     StorageType
		wantAPI     bool
		wantMetrics bool
		wantStorage bool
	}{
		{ModeProxy, StorageOff, false, false, false},
		{ModeProxy, StorageSQLite, false, false, false},
		{ModeMonitor, StorageSQLite, true, true, true},
		{ModeMonitor, StorageMemory, true, true, true},
		{ModeMonitor, StorageOff, true, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+string(tt.storage), func(t *testing.T) {
			cfg := Config{Mode: tt.mode, Storage: tt.storage}
			f := cfg.Features()

			if f.API != tt.wantAPI {
				t.Errorf("API = %v, want %v", f.API, tt.wantAPI)
			}
			if f.Metrics != tt.wantMetrics {
				t.Errorf("Metrics = %v, want %v", f.Metrics, tt.wantMetrics)
			}
			if f.Storage != tt.wantStorage {
				t.Errorf("Storage = %v, want %v", f.Storage, tt.wantStorage)
			}
		})
	}
}
