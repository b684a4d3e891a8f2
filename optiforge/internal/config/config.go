package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr                   string   `yaml:"addr"`
	DatabaseURL            string   `yaml:"database_url"`
	Provider               string   `yaml:"provider"`
	ProviderModel          string   `yaml:"provider_model"`
	ProviderBaseURL        string   `yaml:"provider_base_url"`
	ProviderAPIKey         string   `yaml:"provider_api_key"`
	ProviderTimeoutSeconds int      `yaml:"provider_timeout_seconds"`
	ProviderRetries        int      `yaml:"provider_retries"`
	SolverMaxSeconds       float64  `yaml:"solver_max_seconds"`
	LogLevel               string   `yaml:"log_level"`
	KafkaBrokers           []string `yaml:"kafka_brokers"`
	KafkaTopic             string   `yaml:"kafka_topic"`
	ArchiveBucket          string   `yaml:"archive_bucket"`
	ArchivePrefix          string   `yaml:"archive_prefix"`
	ArchiveEndpoint        string   `yaml:"archive_endpoint"`
}

const (
	defaultAddr             = ":8080"
	defaultDatabaseURL      = "sqlite:///data/optiforge.db"
	defaultProvider         = "stub"
	defaultProviderModel    = "stub-model"
	defaultProviderBaseURL  = "https://api.openai.com"
	defaultProviderTimeout  = 30
	defaultProviderRetries  = 2
	defaultSolverMaxSeconds = 5
	defaultLogLevel         = "INFO"
	defaultKafkaTopic       = "optiforge.runs"
)

func Defaults() Config {
	return Config{
		Addr:                   defaultAddr,
		DatabaseURL:            defaultDatabaseURL,
		Provider:               defaultProvider,
		ProviderModel:          defaultProviderModel,
		ProviderBaseURL:        defaultProviderBaseURL,
		ProviderTimeoutSeconds: defaultProviderTimeout,
		ProviderRetries:        defaultProviderRetries,
		SolverMaxSeconds:       defaultSolverMaxSeconds,
		LogLevel:               defaultLogLevel,
		KafkaTopic:             defaultKafkaTopic,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// OPTIFORGE_CONFIG_FILE if set, then OPTIFORGE_* environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("OPTIFORGE_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.Addr = getEnv("OPTIFORGE_ADDR", cfg.Addr)
	cfg.DatabaseURL = getEnv("OPTIFORGE_DATABASE_URL", cfg.DatabaseURL)
	cfg.Provider = strings.ToLower(getEnv("OPTIFORGE_PROVIDER", cfg.Provider))
	cfg.ProviderModel = getEnv("OPTIFORGE_PROVIDER_MODEL", cfg.ProviderModel)
	cfg.ProviderBaseURL = getEnv("OPTIFORGE_PROVIDER_BASE_URL", cfg.ProviderBaseURL)
	cfg.ProviderAPIKey = getEnv("OPTIFORGE_PROVIDER_API_KEY", cfg.ProviderAPIKey)
	cfg.ProviderTimeoutSeconds = getInt("OPTIFORGE_PROVIDER_TIMEOUT_SECONDS", cfg.ProviderTimeoutSeconds)
	cfg.ProviderRetries = getInt("OPTIFORGE_PROVIDER_RETRIES", cfg.ProviderRetries)
	cfg.SolverMaxSeconds = getFloat("OPTIFORGE_SOLVER_MAX_SECONDS", cfg.SolverMaxSeconds)
	cfg.LogLevel = getEnv("OPTIFORGE_LOG_LEVEL", cfg.LogLevel)
	cfg.KafkaBrokers = getList("OPTIFORGE_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("OPTIFORGE_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.ArchiveBucket = getEnv("OPTIFORGE_ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.ArchivePrefix = getEnv("OPTIFORGE_ARCHIVE_PREFIX", cfg.ArchivePrefix)
	cfg.ArchiveEndpoint = getEnv("OPTIFORGE_ARCHIVE_ENDPOINT", cfg.ArchiveEndpoint)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Provider {
	case "stub":
	case "openai":
		if c.ProviderAPIKey == "" {
			return fmt.Errorf("OPTIFORGE_PROVIDER_API_KEY required when provider is openai")
		}
	default:
		return fmt.Errorf("unknown provider %q (want stub or openai)", c.Provider)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("OPTIFORGE_DATABASE_URL required")
	}
	if strings.HasPrefix(c.DatabaseURL, "sqlite://") && !strings.HasPrefix(c.DatabaseURL, "sqlite:///") {
		return fmt.Errorf("sqlite database url must be sqlite:///path, got %q", c.DatabaseURL)
	}
	if c.SolverMaxSeconds <= 0 {
		return fmt.Errorf("OPTIFORGE_SOLVER_MAX_SECONDS must be positive")
	}
	if c.ProviderTimeoutSeconds <= 0 {
		return fmt.Errorf("OPTIFORGE_PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.ProviderRetries < 0 {
		return fmt.Errorf("OPTIFORGE_PROVIDER_RETRIES must not be negative")
	}
	return nil
}

func (c Config) SolverBudget() time.Duration {
	return time.Duration(c.SolverMaxSeconds * float64(time.Second))
}

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
