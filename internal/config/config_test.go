package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultsValidate(t *testing.T) {
	t.Setenv("STORAGE", "")
	os.Unsetenv("STORAGE")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q, want :5000", cfg.ListenAddr)
	}
	if cfg.Storage != StorageSQLite {
		t.Errorf("Default storage = %v, want %v", cfg.Storage, StorageSQLite)
	}
	if cfg.StorageMaxRows != 3000 {
		t.Errorf("StorageMaxRows = %v, want 3000", cfg.StorageMaxRows)
	}
	if cfg.LLMModel != "llama-3.3-70b-versatile" {
		t.Errorf("LLMModel = %q", cfg.LLMModel)
	}
	if cfg.LLMMaxTokens != 4000 {
		t.Errorf("LLMMaxTokens = %d, want 4000", cfg.LLMMaxTokens)
	}
	if cfg.SandboxTimeout != 5*time.Second {
		t.Errorf("SandboxTimeout = %v, want 5s", cfg.SandboxTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("STORAGE", "memory")
	t.Setenv("LLM_CACHE_TTL", "0s")
	t.Setenv("SANDBOX_MAX_ROWS", "42")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %v, want memory", cfg.Storage)
	}
	if cfg.SandboxMaxRows != 42 {
		t.Errorf("SandboxMaxRows = %d, want 42", cfg.SandboxMaxRows)
	}
	if cfg.Features().Cache {
		t.Error("Features.Cache should be false when LLM_CACHE_TTL=0")
	}
}

func TestGroqKeyFallback(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", " gsk_test ")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMAPIKey != "gsk_test" {
		t.Errorf("LLMAPIKey = %q, want gsk_test", cfg.LLMAPIKey)
	}
	if !cfg.Features().Health {
		t.Error("Features.Health should be true when an API key is set")
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlcoach.yaml")
	if err := os.WriteFile(path, []byte("LLM_MODEL: test-model\nSTORAGE: \"off\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMModel != "test-model" {
		t.Errorf("LLMModel = %q, want test-model", cfg.LLMModel)
	}
	if cfg.Features().History {
		t.Error("Features.History should be false for STORAGE=off")
	}
}

func TestMissingConfigFileRejected(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(v); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestInvalidStorageRejected(t *testing.T) {
	t.Setenv("STORAGE", "postgres")

	if _, err := Load(viper.New()); err == nil {
		t.Error("expected error for invalid STORAGE")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ListenAddr:          ":5000",
			LogLevel:            "info",
			Storage:             StorageMemory,
			StorageMaxRows:      100,
			LLMBaseURL:          "http://localhost:8080",
			LLMModel:            "m",
			LLMTemperature:      0.1,
			LLMMaxTokens:        10,
			LLMTimeout:          time.Second,
			LLMRetryMax:         1,
			HealthCheckInterval: time.Second,
			HealthCheckTimeout:  time.Second,
			SandboxTimeout:      time.Second,
			SandboxMaxRows:      1,
			SessionTTL:          time.Minute,
			RequestBodyMaxBytes: 4096,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"sqlite without path", func(c *Config) { c.Storage = StorageSQLite }, true},
		{"too few rows", func(c *Config) { c.StorageMaxRows = 10 }, true},
		{"non-http base url", func(c *Config) { c.LLMBaseURL = "ftp://x" }, true},
		{"zero retries", func(c *Config) { c.LLMRetryMax = 0 }, true},
		{"temperature too high", func(c *Config) { c.LLMTemperature = 3 }, true},
		{"negative cache ttl", func(c *Config) { c.LLMCacheTTL = -time.Second }, true},
		{"zero sandbox rows", func(c *Config) { c.SandboxMaxRows = 0 }, true},
		{"tiny body cap", func(c *Config) { c.RequestBodyMaxBytes = 10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
