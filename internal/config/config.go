package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageType controls the history storage backend.
type StorageType string

const (
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
	StorageOff    StorageType = "off"
)

// Features derived from the configuration - centralized feature gating.
type Features struct {
	History  bool
	API      bool
	Metrics  bool
	Cache    bool
	Health   bool
	Practice bool
}

// Config contains all runtime configuration for the service.
type Config struct {
	// Core
	ListenAddr string
	LogLevel   string

	// History storage
	Storage        StorageType
	StoragePath    string
	StorageMaxRows int

	// LLM collaborator
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMTemperature  float64
	LLMMaxTokens    int
	LLMTimeout      time.Duration
	LLMRetryMax     int
	LLMRetryBackoff time.Duration
	LLMCacheTTL     time.Duration

	// Upstream health
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	// SQL sandbox
	SandboxTimeout time.Duration
	SandboxMaxRows int

	// Practice questions (empty = embedded bank)
	PracticeBank string

	// Sessions
	SessionTTL time.Duration

	// HTTP
	RequestBodyMaxBytes int64
	CORSAllowOrigin     string
	MetricsEnabled      bool
}

// Option is one configuration key with its default and meaning.
type Option struct {
	Key     string
	Default any
	Comment string
}

// Options returns every configuration key the service understands.
// Keys double as environment variable names.
func Options() []Option {
	return []Option{
		{Key: "LISTEN_ADDR", Default: ":5000", Comment: "HTTP listen address"},
		{Key: "LOG_LEVEL", Default: "info", Comment: "debug|info|warn|error"},

		{Key: "STORAGE", Default: string(StorageSQLite), Comment: "History backend: sqlite|memory|off"},
		{Key: "STORAGE_PATH", Default: "data/sqlcoach.sqlite", Comment: "SQLite history file"},
		{Key: "STORAGE_MAX_ROWS", Default: 3000, Comment: "History rows kept before pruning"},

		{Key: "LLM_BASE_URL", Default: "https://api.groq.com/openai/v1", Comment: "OpenAI-compatible API base URL"},
		{Key: "LLM_API_KEY", Default: "", Comment: "Bearer token (falls back to GROQ_API_KEY)"},
		{Key: "LLM_MODEL", Default: "llama-3.3-70b-versatile", Comment: "Chat model name"},
		{Key: "LLM_TEMPERATURE", Default: 0.1, Comment: "Sampling temperature"},
		{Key: "LLM_MAX_TOKENS", Default: 4000, Comment: "Completion token cap"},
		{Key: "LLM_TIMEOUT", Default: 60 * time.Second, Comment: "Per-attempt HTTP timeout"},
		{Key: "LLM_RETRY_MAX", Default: 2, Comment: "Attempts per call (>= 1)"},
		{Key: "LLM_RETRY_BACKOFF", Default: 500 * time.Millisecond, Comment: "Wait between attempts"},
		{Key: "LLM_CACHE_TTL", Default: 10 * time.Minute, Comment: "Response cache TTL (0 disables)"},

		{Key: "HEALTH_CHECK_INTERVAL", Default: 60 * time.Second, Comment: "Upstream health probe interval"},
		{Key: "HEALTH_CHECK_TIMEOUT", Default: 5 * time.Second, Comment: "Upstream health probe timeout"},

		{Key: "SANDBOX_TIMEOUT", Default: 5 * time.Second, Comment: "Wall clock limit per sandbox run"},
		{Key: "SANDBOX_MAX_ROWS", Default: 500, Comment: "Row cap per result set and table snapshot"},

		{Key: "PRACTICE_BANK", Default: "", Comment: "YAML question bank path (empty = embedded)"},

		{Key: "SESSION_TTL", Default: 2 * time.Hour, Comment: "Idle workspace lifetime"},

		{Key: "REQUEST_BODY_MAX_BYTES", Default: int64(1 << 20), Comment: "Request body cap"},
		{Key: "CORS_ALLOW_ORIGIN", Default: "", Comment: "Access-Control-Allow-Origin value (empty = none)"},
		{Key: "METRICS_ENABLED", Default: true, Comment: "Expose /metrics"},
	}
}

// Features returns the feature flags derived from the configuration.
func (c *Config) Features() Features {
	return Features{
		History:  c.Storage != StorageOff,
		API:      c.Storage != StorageOff,
		Metrics:  c.MetricsEnabled,
		Cache:    c.LLMCacheTTL > 0,
		Health:   c.LLMAPIKey != "",
		Practice: true,
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// If v has a config file set it must be readable.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	for _, o := range Options() {
		v.SetDefault(o.Key, o.Default)
	}
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	apiKey := strings.TrimSpace(v.GetString("LLM_API_KEY"))
	if apiKey == "" {
		_ = v.BindEnv("GROQ_API_KEY")
		apiKey = strings.TrimSpace(v.GetString("GROQ_API_KEY"))
	}

	cfg := Config{
		ListenAddr: v.GetString("LISTEN_ADDR"),
		LogLevel:   strings.ToLower(v.GetString("LOG_LEVEL")),

		Storage:        StorageType(strings.ToLower(v.GetString("STORAGE"))),
		StoragePath:    v.GetString("STORAGE_PATH"),
		StorageMaxRows: v.GetInt("STORAGE_MAX_ROWS"),

		LLMBaseURL:      strings.TrimRight(v.GetString("LLM_BASE_URL"), "/"),
		LLMAPIKey:       apiKey,
		LLMModel:        v.GetString("LLM_MODEL"),
		LLMTemperature:  v.GetFloat64("LLM_TEMPERATURE"),
		LLMMaxTokens:    v.GetInt("LLM_MAX_TOKENS"),
		LLMTimeout:      v.GetDuration("LLM_TIMEOUT"),
		LLMRetryMax:     v.GetInt("LLM_RETRY_MAX"),
		LLMRetryBackoff: v.GetDuration("LLM_RETRY_BACKOFF"),
		LLMCacheTTL:     v.GetDuration("LLM_CACHE_TTL"),

		HealthCheckInterval: v.GetDuration("HEALTH_CHECK_INTERVAL"),
		HealthCheckTimeout:  v.GetDuration("HEALTH_CHECK_TIMEOUT"),

		SandboxTimeout: v.GetDuration("SANDBOX_TIMEOUT"),
		SandboxMaxRows: v.GetInt("SANDBOX_MAX_ROWS"),

		PracticeBank: v.GetString("PRACTICE_BANK"),

		SessionTTL: v.GetDuration("SESSION_TTL"),

		RequestBodyMaxBytes: v.GetInt64("REQUEST_BODY_MAX_BYTES"),
		CORSAllowOrigin:     v.GetString("CORS_ALLOW_ORIGIN"),
		MetricsEnabled:      v.GetBool("METRICS_ENABLED"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q (must be debug|info|warn|error)", c.LogLevel)
	}

	switch c.Storage {
	case StorageSQLite, StorageMemory, StorageOff:
		// ok
	default:
		return fmt.Errorf("invalid STORAGE: %q (must be sqlite|memory|off)", c.Storage)
	}
	if c.Storage == StorageSQLite && c.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH must be set when STORAGE=sqlite")
	}
	if c.StorageMaxRows < 100 {
		return fmt.Errorf("STORAGE_MAX_ROWS must be >= 100")
	}

	if !strings.HasPrefix(c.LLMBaseURL, "http://") && !strings.HasPrefix(c.LLMBaseURL, "https://") {
		return fmt.Errorf("LLM_BASE_URL must be an http(s) URL, got %q", c.LLMBaseURL)
	}
	if c.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL must not be empty")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.LLMRetryMax < 1 {
		return fmt.Errorf("LLM_RETRY_MAX must be >= 1")
	}
	if c.LLMRetryBackoff < 0 {
		return fmt.Errorf("LLM_RETRY_BACKOFF must be >= 0")
	}
	if c.LLMCacheTTL < 0 {
		return fmt.Errorf("LLM_CACHE_TTL must be >= 0")
	}

	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be > 0")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}

	if c.SandboxTimeout <= 0 {
		return fmt.Errorf("SANDBOX_TIMEOUT must be > 0")
	}
	if c.SandboxMaxRows < 1 {
		return fmt.Errorf("SANDBOX_MAX_ROWS must be >= 1")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}

	if c.RequestBodyMaxBytes < 1024 {
		return fmt.Errorf("REQUEST_BODY_MAX_BYTES must be >= 1024")
	}

	return nil
}
