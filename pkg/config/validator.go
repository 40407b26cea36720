package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.Server.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate Fetcher config
	if c.Fetcher.ConnectTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.connect_timeout",
			Message: "connect_timeout must be positive",
		})
	}

	if c.Fetcher.ReadTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.read_timeout",
			Message: "read_timeout must be positive",
		})
	}

	if c.Fetcher.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	if c.Fetcher.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Provider {
	case ProviderHuggingFace:
	case ProviderOllama:
		if u, err := url.Parse(c.Embedder.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedder.Provider),
		})
	}

	if c.Embedder.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "embedder.model",
			Message: "model is required",
		})
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Database config
	if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.Collection == "" {
		errors = append(errors, ValidationError{
			Field:   "database.collection",
			Message: "collection is required",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Search config
	if c.Search.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.top_k",
			Message: "top_k must be positive",
		})
	}

	return errors
}
