// Package config provides configuration management for cubechat.
// It supports loading configuration from environment variables and config files.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/datales/cubechat/internal/chat"
	"github.com/datales/cubechat/internal/embedding"
	"github.com/datales/cubechat/internal/execution"
	"github.com/datales/cubechat/internal/extraction"
)

// Config holds all configuration for cubechat.
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Catalog configuration
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Session storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Embedding configuration
	Embedding embedding.Config `mapstructure:"embedding"`

	// LLM extraction configuration
	Extraction extraction.Config `mapstructure:"extraction"`

	// Member similarity configuration
	Similarity SimilarityConfig `mapstructure:"similarity"`

	// Turn router configuration
	Chat chat.Config `mapstructure:"chat"`

	// Data API execution configuration
	Execution execution.Config `mapstructure:"execution"`

	// Logging configuration
	Log LogConfig `mapstructure:"log"`

	// Security configuration
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort            int           `mapstructure:"http_port"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	CORSOrigins         []string      `mapstructure:"cors_origins"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// CatalogConfig holds cube catalog settings.
type CatalogConfig struct {
	// Path is the JSON catalog document describing the cubes.
	Path string `mapstructure:"path"`
}

// StorageConfig holds session store settings.
type StorageConfig struct {
	// Backend selects "badger" or "memory".
	Backend    string        `mapstructure:"backend"`
	DataDir    string        `mapstructure:"data_dir"`
	SyncWrites bool          `mapstructure:"sync_writes"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// SimilarityConfig holds member resolution settings.
type SimilarityConfig struct {
	// MinSimilarity is the cosine floor below which a member match is
	// surfaced for clarification instead of accepted. Zero accepts the
	// top match unconditionally.
	MinSimilarity float32 `mapstructure:"min_similarity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, file path
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey       string `mapstructure:"api_key"`
	EnableTLS    bool   `mapstructure:"enable_tls"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	TLSKeyPath   string `mapstructure:"tls_key_path"`
	RateLimitRPS int    `mapstructure:"rate_limit_rps"`
}

// Default configuration values.
var defaults = map[string]interface{}{
	// Server defaults
	"server.http_port":             8080,
	"server.request_timeout":       "120s",
	"server.cors_origins":          []string{"*"},
	"server.shutdown_grace_period": "10s",

	// Catalog defaults
	"catalog.path": "./catalog.json",

	// Storage defaults
	"storage.backend":     "badger",
	"storage.data_dir":    "./data",
	"storage.sync_writes": false,
	"storage.session_ttl": "24h",

	// Embedding defaults
	"embedding.provider":   "mock",
	"embedding.dimension":  384,
	"embedding.batch_size": 32,

	// Extraction defaults
	"extraction.max_attempts": 5,
	"extraction.backoff":      "1s",

	// Similarity defaults
	"similarity.min_similarity": 0.0,

	// Chat defaults
	"chat.candidate_cubes":  3,
	"chat.transcript_turns": 12,
	"chat.member_samples":   5,

	// Execution defaults
	"execution.base_url": "",
	"execution.timeout":  "30s",

	// Log defaults
	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	// Security defaults
	"security.api_key":        "",
	"security.enable_tls":     false,
	"security.rate_limit_rps": 100,
}

// Load loads configuration from environment variables and optional config file.
// Environment variables are prefixed with CUBECHAT_ and use underscores.
// Example: CUBECHAT_SERVER_HTTP_PORT=8080
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Environment variables
	v.SetEnvPrefix("CUBECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlatEnvVars(v)

	// Try to read config file (optional)
	v.SetConfigName("cubechat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cubechat")
	v.AddConfigPath("$HOME/.cubechat")

	// It's okay if config file doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(cfg.Extraction.Strategies) == 0 {
		cfg.Extraction.Strategies = defaultStrategies(v)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindFlatEnvVars maps short CUBECHAT_* env vars to the nested structure.
func bindFlatEnvVars(v *viper.Viper) {
	mappings := map[string]string{
		"HTTP_PORT":       "server.http_port",
		"CATALOG_PATH":    "catalog.path",
		"DATA_DIR":        "storage.data_dir",
		"LOG_LEVEL":       "log.level",
		"LOG_FORMAT":      "log.format",
		"DATA_API_URL":    "execution.base_url",
		"MIN_SIMILARITY":  "similarity.min_similarity",
		"API_KEY":         "security.api_key",
		"MODEL":           "extraction.model",
		"MODEL_URL":       "extraction.model_url",
		"MODEL_API_KEY":   "extraction.model_api_key",
		"FALLBACK_MODEL":  "extraction.fallback_model",
		"EMBEDDING_MODEL": "embedding.model",
		"EMBEDDING_URL":   "embedding.base_url",
	}

	for envSuffix, configKey := range mappings {
		_ = v.BindEnv(configKey, "CUBECHAT_"+envSuffix)
	}
}

// defaultStrategies builds the extraction strategy chain from flat
// settings when no explicit strategy list is configured. An empty model
// leaves the chain empty, which the server rejects at startup.
func defaultStrategies(v *viper.Viper) []extraction.ProviderConfig {
	model := v.GetString("extraction.model")
	if model == "" {
		return nil
	}

	providerType := "ollama"
	if v.GetString("extraction.model_api_key") != "" {
		providerType = "openai"
	}

	strategies := []extraction.ProviderConfig{{
		Type:    providerType,
		BaseURL: v.GetString("extraction.model_url"),
		APIKey:  v.GetString("extraction.model_api_key"),
		Model:   model,
	}}

	if fallback := v.GetString("extraction.fallback_model"); fallback != "" {
		strategies = append(strategies, extraction.ProviderConfig{
			Type:    providerType,
			BaseURL: v.GetString("extraction.model_url"),
			APIKey:  v.GetString("extraction.model_api_key"),
			Model:   fallback,
		})
	}
	return strategies
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	validBackends := map[string]bool{"badger": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s (valid: badger, memory)", c.Storage.Backend)
	}
	if c.Storage.Backend == "badger" && c.Storage.DataDir == "" {
		return fmt.Errorf("data directory is required for the badger backend")
	}

	validProviders := map[string]bool{"remote": true, "mock": true}
	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding provider: %s (valid: remote, mock)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "remote" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding base URL required when using the remote provider")
	}

	for i, s := range c.Extraction.Strategies {
		if s.Type != "ollama" && s.Type != "openai" {
			return fmt.Errorf("invalid extraction provider type at strategy %d: %s (valid: ollama, openai)", i, s.Type)
		}
		if s.Model == "" {
			return fmt.Errorf("extraction strategy %d has no model", i)
		}
	}

	if c.Similarity.MinSimilarity < 0 || c.Similarity.MinSimilarity > 1 {
		return fmt.Errorf("min similarity must be within [0, 1]: %g", c.Similarity.MinSimilarity)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Log.Format)
	}

	if c.Security.EnableTLS {
		if c.Security.TLSCertPath == "" || c.Security.TLSKeyPath == "" {
			return fmt.Errorf("TLS cert and key paths required when TLS is enabled")
		}
	}

	return nil
}

// String returns a string representation of the config (without sensitive values).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {HTTP: %d}, Catalog: {Path: %s}, Storage: {Backend: %s}, Embedding: {Provider: %s}, Strategies: %d, Log: {Level: %s}}",
		c.Server.HTTPPort,
		c.Catalog.Path,
		c.Storage.Backend,
		c.Embedding.Provider,
		len(c.Extraction.Strategies),
		c.Log.Level,
	)
}
