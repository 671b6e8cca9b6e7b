package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datales/cubechat/internal/extraction"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "CUBECHAT_") {
			key := strings.SplitN(env, "=", 2)[0]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 120*time.Second, cfg.Server.RequestTimeout)
	assert.Contains(t, cfg.Server.CORSOrigins, "*")

	assert.Equal(t, "./catalog.json", cfg.Catalog.Path)

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 24*time.Hour, cfg.Storage.SessionTTL)

	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)

	assert.Equal(t, 5, cfg.Extraction.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Extraction.Backoff)
	assert.Empty(t, cfg.Extraction.Strategies)

	assert.Zero(t, cfg.Similarity.MinSimilarity)

	assert.Equal(t, 3, cfg.Chat.CandidateCubes)
	assert.Equal(t, 12, cfg.Chat.TranscriptTurns)
	assert.Equal(t, 5, cfg.Chat.MemberSamples)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	assert.Equal(t, 100, cfg.Security.RateLimitRPS)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CUBECHAT_HTTP_PORT", "9999")
	t.Setenv("CUBECHAT_CATALOG_PATH", "/srv/catalog.json")
	t.Setenv("CUBECHAT_LOG_LEVEL", "debug")
	t.Setenv("CUBECHAT_DATA_API_URL", "https://api.example.org")
	t.Setenv("CUBECHAT_MIN_SIMILARITY", "0.75")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "/srv/catalog.json", cfg.Catalog.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://api.example.org", cfg.Execution.BaseURL)
	assert.InDelta(t, 0.75, cfg.Similarity.MinSimilarity, 0.0001)
}

func TestLoad_NestedEnvVars(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CUBECHAT_STORAGE_BACKEND", "memory")
	t.Setenv("CUBECHAT_SERVER_HTTP_PORT", "8081")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8081, cfg.Server.HTTPPort)
}

func TestLoad_DefaultStrategies(t *testing.T) {
	t.Run("model alone selects ollama", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv("CUBECHAT_MODEL", "llama3")
		t.Setenv("CUBECHAT_MODEL_URL", "http://localhost:11434")

		cfg, err := Load()
		require.NoError(t, err)
		require.Len(t, cfg.Extraction.Strategies, 1)
		assert.Equal(t, "ollama", cfg.Extraction.Strategies[0].Type)
		assert.Equal(t, "llama3", cfg.Extraction.Strategies[0].Model)
		assert.Equal(t, "http://localhost:11434", cfg.Extraction.Strategies[0].BaseURL)
	})

	t.Run("api key selects openai", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv("CUBECHAT_MODEL", "gpt-4o-mini")
		t.Setenv("CUBECHAT_MODEL_API_KEY", "sk-test")

		cfg, err := Load()
		require.NoError(t, err)
		require.Len(t, cfg.Extraction.Strategies, 1)
		assert.Equal(t, "openai", cfg.Extraction.Strategies[0].Type)
	})

	t.Run("fallback model appends a second strategy", func(t *testing.T) {
		clearEnvVars(t)
		t.Setenv("CUBECHAT_MODEL", "llama3")
		t.Setenv("CUBECHAT_FALLBACK_MODEL", "mistral")

		cfg, err := Load()
		require.NoError(t, err)
		require.Len(t, cfg.Extraction.Strategies, 2)
		assert.Equal(t, "llama3", cfg.Extraction.Strategies[0].Model)
		assert.Equal(t, "mistral", cfg.Extraction.Strategies[1].Model)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Server.HTTPPort = 8080
		cfg.Catalog.Path = "./catalog.json"
		cfg.Storage.Backend = "memory"
		cfg.Embedding.Provider = "mock"
		cfg.Log.Level = "info"
		cfg.Log.Format = "console"
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HTTPPort = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires a catalog path", func(t *testing.T) {
		cfg := valid()
		cfg.Catalog.Path = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown storage backend", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "etcd"
		assert.Error(t, cfg.Validate())
	})

	t.Run("badger backend needs a data dir", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "badger"
		cfg.Storage.DataDir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("remote embedding needs a base URL", func(t *testing.T) {
		cfg := valid()
		cfg.Embedding.Provider = "remote"
		assert.Error(t, cfg.Validate())

		cfg.Embedding.BaseURL = "http://localhost:9000"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown extraction provider type", func(t *testing.T) {
		cfg := valid()
		cfg.Extraction.Strategies = append(cfg.Extraction.Strategies, extraction.ProviderConfig{Type: "grpc", Model: "claude"})
		assert.Error(t, cfg.Validate())
	})

	t.Run("strategies need a model", func(t *testing.T) {
		cfg := valid()
		cfg.Extraction.Strategies = append(cfg.Extraction.Strategies, extraction.ProviderConfig{Type: "ollama"})
		assert.Error(t, cfg.Validate())
	})

	t.Run("similarity floor must be within bounds", func(t *testing.T) {
		cfg := valid()
		cfg.Similarity.MinSimilarity = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("TLS needs cert and key paths", func(t *testing.T) {
		cfg := valid()
		cfg.Security.EnableTLS = true
		assert.Error(t, cfg.Validate())

		cfg.Security.TLSCertPath = "/tls/cert.pem"
		cfg.Security.TLSKeyPath = "/tls/key.pem"
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{}
	cfg.Server.HTTPPort = 8080
	cfg.Catalog.Path = "./catalog.json"
	cfg.Security.APIKey = "super-secret"

	out := cfg.String()
	assert.Contains(t, out, "8080")
	assert.NotContains(t, out, "super-secret")
}
