package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/glov/internal/types"
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
)

// EmbedderConfig represents the configuration for an embedding model.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string // inference server URL
	Token     string // Hugging Face API token
	BatchSize int
	CacheSize int // query embeddings kept in memory
	Dimension int // expected vector length, 0 to skip the check
}

// Embedder maps text to vectors. It is created once per process and shared
// by indexing and search, so both sides always use the same model.
type Embedder struct {
	config EmbedderConfig
	impl   embeddings.Embedder
	cache  *lru.Cache[string, []float32]
}

func (c *EmbedderConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderHuggingFace
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-m3"
	}
	if c.BaseURL == "" && c.Provider == ProviderOllama {
		c.BaseURL = "http://localhost:11434"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config.applyDefaults()

	var impl embeddings.Embedder
	switch config.Provider {
	case ProviderOllama:
		// ollama.WithServerURL exits the process on a malformed URL
		if u, err := url.Parse(config.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid Ollama base URL %q", config.BaseURL)
		}
		client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
		}
		impl, err = embeddings.NewEmbedder(client,
			embeddings.WithBatchSize(config.BatchSize),
			embeddings.WithStripNewLines(false),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}

	case ProviderHuggingFace:
		opts := []huggingface.Option{huggingface.WithModel(config.Model)}
		if config.Token != "" {
			opts = append(opts, huggingface.WithToken(config.Token))
		}
		if config.BaseURL != "" {
			opts = append(opts, huggingface.WithURL(config.BaseURL))
		}
		client, err := huggingface.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Hugging Face client: %w", err)
		}
		impl, err = hfembeddings.NewHuggingface(
			hfembeddings.WithClient(*client),
			hfembeddings.WithModel(config.Model),
			hfembeddings.WithTask("feature-extraction"),
			hfembeddings.WithBatchSize(config.BatchSize),
			hfembeddings.WithStripNewLines(false),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return newEmbedder(config, impl)
}

// NewEmbedderWithClient wraps any embedding client, for providers that
// expose the plain CreateEmbedding call.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	config.applyDefaults()

	// the langchaingo query path indexes the first vector unchecked
	guarded := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors, err := client.CreateEmbedding(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedding client returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	})

	impl, err := embeddings.NewEmbedder(guarded,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return newEmbedder(config, impl)
}

func newEmbedder(config EmbedderConfig, impl embeddings.Embedder) (*Embedder, error) {
	e := &Embedder{config: config, impl: impl}
	if config.CacheSize > 0 {
		cache, err := lru.New[string, []float32](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, types.NewError(types.KindEmbeddingFailure, "", "failed to embed documents", err)
	}
	if len(vectors) != len(texts) {
		return nil, types.Errorf(types.KindEmbeddingFailure, "",
			"embedding model returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.checkDimension(v); err != nil {
			return nil, types.NewError(types.KindEmbeddingFailure, "", fmt.Sprintf("text %d", i), err)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query. Results are cached because the model
// is deterministic for a given text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.config.Model, text)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return cloneVector(v), nil
		}
	}

	vector, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, types.NewError(types.KindEmbeddingFailure, "", "failed to embed query", err)
	}
	if err := e.checkDimension(vector); err != nil {
		return nil, types.NewError(types.KindEmbeddingFailure, "", "query", err)
	}

	if e.cache != nil {
		e.cache.Add(key, cloneVector(vector))
	}
	return vector, nil
}

func (e *Embedder) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if e.config.Dimension > 0 && len(v) != e.config.Dimension {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(v), e.config.Dimension)
	}
	return nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
