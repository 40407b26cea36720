package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "EMBEDDINGS_PROVIDER", "EMBEDDINGS_MODEL_NAME", "OLLAMA_BASE_URL",
		"HUGGINGFACEHUB_API_TOKEN", "GLOV_HOST", "GLOV_PORT", "GLOV_LOG_LEVEL", "GLOV_COLLECTION",
	} {
		// Setenv restores the original value on cleanup
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
server:
  host: "0.0.0.0"
  port: 9000

fetcher:
  connect_timeout: 5s
  read_timeout: 1m
  max_bytes: 1048576

processor:
  chunk_size: 200
  chunk_overlap: 20

embedder:
  provider: "ollama"
  model: "nomic-embed-text"
  base_url: "http://localhost:11434"

database:
  url: "postgres://localhost:5432/test"
  collection: "papers"
  vector_dim: 768
  use_jsonb: false

search:
  top_k: 3
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 5*time.Second, config.Fetcher.ConnectTimeout)
	assert.Equal(t, time.Minute, config.Fetcher.ReadTimeout)
	assert.Equal(t, int64(1048576), config.Fetcher.MaxBytes)
	assert.Equal(t, 200, config.Processor.ChunkSize)
	assert.Equal(t, 20, config.Processor.ChunkOverlap)
	assert.Equal(t, ProviderOllama, config.Embedder.Provider)
	assert.Equal(t, "nomic-embed-text", config.Embedder.Model)
	assert.Equal(t, "papers", config.Database.Collection)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.False(t, config.UseJSONB())
	assert.Equal(t, 3, config.Search.TopK)

	// unset values fall back to defaults
	assert.Equal(t, "glov_embeddings", config.Database.TableName)
	assert.Equal(t, 3, config.Search.MinQueryLength)
	assert.Empty(t, config.Validate())
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8000, config.Server.Port)
	assert.Equal(t, 10*time.Second, config.Fetcher.ConnectTimeout)
	assert.Equal(t, 30*time.Second, config.Fetcher.ReadTimeout)
	assert.Equal(t, int64(20971520), config.Fetcher.MaxBytes)
	assert.Equal(t, 100, config.Processor.ChunkSize)
	assert.Equal(t, 0, config.Processor.ChunkOverlap)
	assert.Equal(t, ProviderHuggingFace, config.Embedder.Provider)
	assert.Equal(t, "BAAI/bge-m3", config.Embedder.Model)
	assert.Equal(t, "my_docs", config.Database.Collection)
	assert.Equal(t, 1024, config.Database.VectorDim)
	assert.True(t, config.UseJSONB())
	assert.Equal(t, 5, config.Search.TopK)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.Server.Port = 70000
				c.Fetcher.ReadTimeout = -time.Second
				c.Processor.ChunkOverlap = 100
				c.Embedder.Provider = "openai"
				c.Database.VectorDim = -1
				c.Search.TopK = -2
			},
			errorMessages: []string{
				"server.port: port must be between 1 and 65535",
				"fetcher.read_timeout: read_timeout must be positive",
				"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size",
				"embedder.provider: unknown provider \"openai\"",
				"database.vector_dim: vector_dim must be positive",
				"search.top_k: top_k must be positive",
			},
		},
		{
			name: "ollama needs a base url",
			mutate: func(c *Config) {
				c.Embedder.Provider = ProviderOllama
				c.Embedder.BaseURL = "localhost"
				c.Database.URL = "::bad"
			},
			errorMessages: []string{
				"embedder.base_url: invalid Ollama base URL",
				"database.url: invalid database URL",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := getDefaultConfig()
			require.NoError(t, err)
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hf_secret")
	t.Setenv("GLOV_PORT", "8081")
	t.Setenv("GLOV_COLLECTION", "env_docs")

	config := &Config{}
	require.NoError(t, mergeWithEnv(config))
	applyDefaults(config)

	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, ProviderOllama, config.Embedder.Provider)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "hf_secret", config.Embedder.Token)
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "env_docs", config.Database.Collection)
}

func TestEnvironmentOverridesInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("GLOV_PORT", "eighty")

	_, err := getDefaultConfig()
	assert.Error(t, err)
}

func TestOllamaBaseURLIgnoredForHuggingFace(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderHuggingFace, config.Embedder.Provider)
	assert.Empty(t, config.Embedder.BaseURL)
}

func TestOllamaBaseURLOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
embedder:
  provider: ollama
  base_url: http://file-ollama:11434
extractor:
  password: hunter2
`), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "hunter2", config.Extractor.Password)
}
