package types

import (
	"context"

	"github.com/xhad/glov/internal/models"
)

// Core interfaces
type Fetcher interface {
	Validate(rawURL string) error
	CheckSize(ctx context.Context, rawURL string) error
	Download(ctx context.Context, rawURL string) (*models.TempFile, error)
}

type Extractor interface {
	Extract(ctx context.Context, file *models.TempFile) ([]models.Document, error)
}

type Splitter interface {
	Split(docs []models.Document) ([]models.Chunk, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, collection string, records []models.VectorRecord) error
	SimilaritySearch(ctx context.Context, collection string, embedding []float32, k int) ([]models.QueryResult, error)
	Close()
}

type Indexer interface {
	Index(ctx context.Context, chunks []models.Chunk, collection string) error
}

type Searcher interface {
	Search(ctx context.Context, query, collection string, k int) ([]models.QueryResult, error)
}
