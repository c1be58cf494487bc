package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the dossier puller
type Config struct {
	// Remote provider settings
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	// Session sizing and pacing
	Session SessionConfig `yaml:"session" json:"session"`

	// Retry and rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Document store settings
	Mongo MongoConfig `yaml:"mongo" json:"mongo"`

	// Progress file settings
	Progress ProgressConfig `yaml:"progress" json:"progress"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ProviderConfig holds remote provider connection settings
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Username       string        `yaml:"username" json:"username"`
	Password       string        `yaml:"password" json:"password"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// PageSize is the number of records requested per API call. The
	// provider caps a single call at MaxPageSize.
	PageSize    int `yaml:"page_size" json:"page_size"`
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`
}

// SessionConfig bounds a single processing session
type SessionConfig struct {
	// RecordBudget is the maximum number of records one session attempts.
	RecordBudget int `yaml:"record_budget" json:"record_budget"`
	// SessionsPerDay is informational only, used for the remaining-days
	// estimate. Actual timing belongs to whatever schedules the binary.
	SessionsPerDay int `yaml:"sessions_per_day" json:"sessions_per_day"`
	// FullSyncPause is the sleep between sessions in run-until-complete
	// mode after a transient failure.
	FullSyncPause time.Duration `yaml:"full_sync_pause" json:"full_sync_pause"`
}

// RateLimitConfig holds retry and pacing configuration
type RateLimitConfig struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	InterCallDelay    time.Duration `yaml:"inter_call_delay" json:"inter_call_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// MongoConfig holds document store connection settings
type MongoConfig struct {
	URI        string        `yaml:"uri" json:"uri"`
	Database   string        `yaml:"database" json:"database"`
	Collection string        `yaml:"collection" json:"collection"`
	OpTimeout  time.Duration `yaml:"op_timeout" json:"op_timeout"`
	// WriteRetries bounds per-record upsert retries before a record is
	// logged and skipped.
	WriteRetries int `yaml:"write_retries" json:"write_retries"`
}

// ProgressConfig holds progress file settings
type ProgressConfig struct {
	FilePath string `yaml:"file_path" json:"file_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:        "https://connect.example.com/rest/v1/",
			RequestTimeout: 30 * time.Second,
			PageSize:       500,
			MaxPageSize:    500,
		},
		Session: SessionConfig{
			RecordBudget:   14000,
			SessionsPerDay: 3,
			FullSyncPause:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
			InterCallDelay:    time.Second,
			RequestsPerMinute: 0, // 0 disables the per-minute ceiling
		},
		Mongo: MongoConfig{
			URI:          "mongodb://localhost:27017/",
			Database:     "dossier_data",
			Collection:   "dossiers",
			OpTimeout:    30 * time.Second,
			WriteRetries: 2,
		},
		Progress: ProgressConfig{
			FilePath: "progress.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Best effort: a missing .env file is not an error
	_ = godotenv.Load()

	if v := os.Getenv("DOSSIERSYNC_API_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("DOSSIERSYNC_API_USERNAME"); v != "" {
		c.Provider.Username = v
	}
	if v := os.Getenv("DOSSIERSYNC_API_PASSWORD"); v != "" {
		c.Provider.Password = v
	}
	if v := os.Getenv("DOSSIERSYNC_REQUEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Provider.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DOSSIERSYNC_API_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Provider.PageSize = n
		}
	}
	if v := os.Getenv("DOSSIERSYNC_PROCESSING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.RecordBudget = n
		}
	}
	if v := os.Getenv("DOSSIERSYNC_SESSIONS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.SessionsPerDay = n
		}
	}
	if v := os.Getenv("DOSSIERSYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RateLimit.MaxRetries = n
		}
	}
	if v := os.Getenv("DOSSIERSYNC_RETRY_DELAY"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			c.RateLimit.RetryDelay = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DOSSIERSYNC_INTER_CALL_DELAY"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			c.RateLimit.InterCallDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("DOSSIERSYNC_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("DOSSIERSYNC_MONGO_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("DOSSIERSYNC_MONGO_COLLECTION"); v != "" {
		c.Mongo.Collection = v
	}
	if v := os.Getenv("DOSSIERSYNC_PROGRESS_FILE"); v != "" {
		c.Progress.FilePath = v
	}
	if v := os.Getenv("DOSSIERSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOSSIERSYNC_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Load builds the effective configuration: defaults, then optional YAML
// file, then environment variables, then explicit command line overrides.
func Load(configFile string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlags overlays command line flag values onto the configuration
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "api-url":
			if v, ok := value.(string); ok && v != "" {
				c.Provider.BaseURL = v
			}
		case "page-size":
			if v, ok := value.(int); ok && v > 0 {
				c.Provider.PageSize = v
			}
		case "budget":
			if v, ok := value.(int); ok && v > 0 {
				c.Session.RecordBudget = v
			}
		case "max-retries":
			if v, ok := value.(int); ok && v >= 0 {
				c.RateLimit.MaxRetries = v
			}
		case "mongo-uri":
			if v, ok := value.(string); ok && v != "" {
				c.Mongo.URI = v
			}
		case "progress-file":
			if v, ok := value.(string); ok && v != "" {
				c.Progress.FilePath = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL is required")
	}
	if c.Provider.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.Provider.PageSize)
	}
	if c.Provider.MaxPageSize > 0 && c.Provider.PageSize > c.Provider.MaxPageSize {
		return fmt.Errorf("page size %d exceeds provider maximum %d",
			c.Provider.PageSize, c.Provider.MaxPageSize)
	}
	if c.Session.RecordBudget <= 0 {
		return fmt.Errorf("session record budget must be positive, got %d", c.Session.RecordBudget)
	}
	if c.Session.SessionsPerDay <= 0 {
		return fmt.Errorf("sessions per day must be positive, got %d", c.Session.SessionsPerDay)
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.RateLimit.MaxRetries)
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is required")
	}
	if c.Progress.FilePath == "" {
		return fmt.Errorf("progress file path is required")
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
