package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OpenAIConfig holds the vision model configuration used for bill extraction
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// ExtractionConfig bounds the parallel OCR fan-out
type ExtractionConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxBills    int `mapstructure:"max_bills"`
}

// PolicyConfig holds the reimbursement rules
type PolicyConfig struct {
	RatePerPerson   float64 `mapstructure:"rate_per_person"`
	ClaimWindowDays int     `mapstructure:"claim_window_days"`
	AmountTolerance float64 `mapstructure:"amount_tolerance"`
	Currency        string  `mapstructure:"currency"`
}

// StorageConfig holds where uploaded bills are kept
type StorageConfig struct {
	BillDir string `mapstructure:"bill_dir"`
}

// LarkConfig holds Lark API configuration for claimant notifications
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the YAML file and environment variables.
// A missing config file is not an error; defaults and environment then apply.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/lunch_claims.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.temperature", 0)
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("extraction.concurrency", 4)
	v.SetDefault("extraction.max_bills", 5)

	v.SetDefault("policy.rate_per_person", 400.0)
	v.SetDefault("policy.claim_window_days", 15)
	v.SetDefault("policy.amount_tolerance", 1.0)
	v.SetDefault("policy.currency", "INR")

	v.SetDefault("storage.bill_dir", "data/bills")

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds credentials that are never kept in the YAML file
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"openai.api_key":  "OPENAI_API_KEY",
		"openai.base_url": "OPENAI_BASE_URL",
		"lark.app_id":     "LARK_APP_ID",
		"lark.app_secret": "LARK_APP_SECRET",
		"database.dsn":    "DATABASE_DSN",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite3 or mysql, got %q", c.Database.Driver)
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Extraction.Concurrency < 1 {
		return fmt.Errorf("extraction.concurrency must be at least 1")
	}
	if c.Extraction.MaxBills < 1 {
		return fmt.Errorf("extraction.max_bills must be at least 1")
	}

	if c.Policy.RatePerPerson <= 0 || !finite(c.Policy.RatePerPerson) {
		return fmt.Errorf("policy.rate_per_person must be positive")
	}
	if c.Policy.ClaimWindowDays < 0 {
		return fmt.Errorf("policy.claim_window_days must not be negative")
	}
	if c.Policy.AmountTolerance < 0 || !finite(c.Policy.AmountTolerance) {
		return fmt.Errorf("policy.amount_tolerance must not be negative")
	}

	if c.Storage.BillDir == "" {
		return fmt.Errorf("storage.bill_dir is required")
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}

	return nil
}

// Addr returns the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
