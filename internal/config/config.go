package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/localrivet/configurator"
)

// Config represents the dialoguesum configuration.
type Config struct {
	// Model describes where the checkpoint lives and which runtime serves it.
	Model struct {
		// Dir is the local checkpoint directory (config.json, tokenizer files).
		Dir string `json:"dir" env:"MODEL_DIR" validate:"required"`

		// Runtime selects the model runtime ("seq2seq", "openai", "extractive").
		Runtime string `json:"runtime" env:"MODEL_RUNTIME" validate:"required"`

		// RuntimeURL is the base URL of the model runtime.
		RuntimeURL string `json:"runtime_url" env:"MODEL_RUNTIME_URL"`

		// ModelID is the model name sent to OpenAI-compatible runtimes.
		ModelID string `json:"model_id" env:"MODEL_ID"`

		// APIKey authenticates against the runtime, if it needs one.
		APIKey string `json:"api_key" env:"MODEL_API_KEY"`

		// Timeout bounds a single generation call ("90s", "2m"). Empty or "0"
		// means no limit.
		Timeout string `json:"timeout" env:"MODEL_TIMEOUT"`
	} `json:"model"`

	// Summarizer controls the inference slot pool and the UI input bound.
	Summarizer struct {
		// Workers is the number of generations allowed to run at once.
		Workers int `json:"workers" env:"SUMMARIZER_WORKERS" validate:"min:1"`

		// MaxUIChars bounds dialogue length in the interactive UI.
		MaxUIChars int `json:"max_ui_chars" env:"SUMMARIZER_MAX_UI_CHARS" validate:"min:1"`
	} `json:"summarizer"`

	// Store configures the summary cache.
	Store struct {
		// Backend is one of "sqlite", "redis" or "none".
		Backend string `json:"backend" env:"STORE_BACKEND"`

		// SQLitePath is the path to the SQLite database file.
		SQLitePath string `json:"sqlite_path" env:"STORE_SQLITE_PATH"`

		// RedisAddr is the host:port of the Redis server.
		RedisAddr string `json:"redis_addr" env:"STORE_REDIS_ADDR"`

		// RedisPassword authenticates against Redis.
		RedisPassword string `json:"redis_password" env:"STORE_REDIS_PASSWORD"`

		// RedisDB selects the Redis database number.
		RedisDB int `json:"redis_db" env:"STORE_REDIS_DB"`

		// TTL is how long a cached summary is kept ("168h").
		TTL string `json:"ttl" env:"STORE_TTL"`

		// PruneSpec is the cron spec of the expired-entry sweep.
		PruneSpec string `json:"prune_spec" env:"STORE_PRUNE_SPEC"`
	} `json:"store"`

	// Server holds listen addresses for the HTTP front ends.
	Server struct {
		// APIAddr is the listen address of the JSON API front end.
		APIAddr string `json:"api_addr" env:"SERVER_API_ADDR"`

		// UIAddr is the listen address of the interactive UI front end.
		UIAddr string `json:"ui_addr" env:"SERVER_UI_ADDR"`

		// TemplatesDir overrides the embedded HTML templates when set.
		TemplatesDir string `json:"templates_dir" env:"SERVER_TEMPLATES_DIR"`
	} `json:"server"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// Tracing configures OpenTelemetry span export.
	Tracing struct {
		Enabled      bool   `json:"enabled" env:"TRACING_ENABLED"`
		ServiceName  string `json:"service_name" env:"TRACING_SERVICE_NAME"`
		OTLPEndpoint string `json:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	} `json:"tracing"`

	configPath     string       `json:"-"`
	mutex          sync.RWMutex `json:"-"`
	lastModifiedAt time.Time    `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename = ".dialoguesumconfig"
	EnvPrefix             = "DIALOGUESUM"

	DefaultModelDir      = "./saved_summary_model"
	DefaultRuntime       = "seq2seq"
	DefaultRuntimeURL    = "http://127.0.0.1:8080"
	DefaultModelTimeout  = "2m"
	DefaultWorkers       = 1
	DefaultMaxUIChars    = 2000
	DefaultStoreBackend  = "sqlite"
	DefaultSQLitePath    = ".dialoguesum.db"
	DefaultRedisAddr     = "localhost:6379"
	DefaultStoreTTL      = "168h"
	DefaultPruneSpec     = "@hourly"
	DefaultAPIAddr       = ":8000"
	DefaultUIAddr        = ":8501"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultServiceName   = "dialoguesum"
	storeBackendNone     = "none"
	storeBackendRedis    = "redis"
	storeBackendSQLiteDB = "sqlite"
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Model.Dir = DefaultModelDir
	cfg.Model.Runtime = DefaultRuntime
	cfg.Model.RuntimeURL = DefaultRuntimeURL
	cfg.Model.Timeout = DefaultModelTimeout
	cfg.Summarizer.Workers = DefaultWorkers
	cfg.Summarizer.MaxUIChars = DefaultMaxUIChars
	cfg.Store.Backend = DefaultStoreBackend
	cfg.Store.SQLitePath = DefaultSQLitePath
	cfg.Store.RedisAddr = DefaultRedisAddr
	cfg.Store.TTL = DefaultStoreTTL
	cfg.Store.PruneSpec = DefaultPruneSpec
	cfg.Server.APIAddr = DefaultAPIAddr
	cfg.Server.UIAddr = DefaultUIAddr
	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat
	cfg.Tracing.ServiceName = DefaultServiceName
	return cfg
}

// LoadConfigWithPath loads defaults, then the JSON file at configPath (if it
// exists), then DIALOGUESUM_* environment variables, and validates the result.
func LoadConfigWithPath(configPath string) (*Config, error) {
	// Config loading happens before the application logger exists.
	stdLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg := NewConfig()

	if configPath == "" {
		configPath = DefaultConfigFilename
	}
	if configPath == DefaultConfigFilename {
		if foundPath, err := configurator.FindConfigFile(configPath); err == nil {
			configPath = foundPath
		}
	}

	loader := configurator.New(stdLogger).
		WithProvider(configurator.NewDefaultProvider())

	if _, err := os.Stat(configPath); err == nil {
		loader = loader.WithProvider(configurator.NewFileProvider(configPath))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	loader = loader.
		WithProvider(configurator.NewEnvProvider(EnvPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	if err := loader.Load(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.configPath = configPath
	cfg.lastModifiedAt = time.Now()

	return cfg, nil
}

// Validate checks the cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case storeBackendSQLiteDB:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case storeBackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	case storeBackendNone, "":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Summarizer.Workers < 1 {
		return fmt.Errorf("summarizer.workers must be at least 1, got %d", c.Summarizer.Workers)
	}
	if _, err := parseDuration(c.Model.Timeout); err != nil {
		return fmt.Errorf("model.timeout: %w", err)
	}
	if _, err := parseDuration(c.Store.TTL); err != nil {
		return fmt.Errorf("store.ttl: %w", err)
	}
	return nil
}

// ModelTimeout returns the parsed generation timeout. Zero means no limit.
func (c *Config) ModelTimeout() time.Duration {
	d, _ := parseDuration(c.Model.Timeout)
	return d
}

// StoreTTL returns the parsed cache entry lifetime. Zero means entries never
// expire.
func (c *Config) StoreTTL() time.Duration {
	d, _ := parseDuration(c.Store.TTL)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", s)
	}
	return d, nil
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path
	c.lastModifiedAt = time.Now()

	return nil
}

// GetConfigPath returns the path of the currently loaded configuration file
func (c *Config) GetConfigPath() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.configPath
}
