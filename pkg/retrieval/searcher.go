package retrieval

import (
	"context"

	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
)

const DefaultTopK = 5

// Searcher ranks stored chunks against a free-text query.
type Searcher struct {
	embedder    types.Embedder
	store       types.VectorStore
	defaultTopK int
}

func NewSearcher(embedder types.Embedder, store types.VectorStore, defaultTopK int) *Searcher {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Searcher{embedder: embedder, store: store, defaultTopK: defaultTopK}
}

// Search returns at most k results, best first. k <= 0 uses the default.
func (s *Searcher) Search(ctx context.Context, query, collection string, k int) ([]models.QueryResult, error) {
	if k <= 0 {
		k = s.defaultTopK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.AsError(err, types.KindEmbeddingFailure, types.StageSearch)
	}

	results, err := s.store.SimilaritySearch(ctx, collection, vector, k)
	if err != nil {
		return nil, types.AsError(err, types.KindStoreFailure, types.StageSearch)
	}
	if len(results) > k {
		results = results[:k]
	}

	logger.FromContext(ctx).Debug("similarity search", "collection", collection, "k", k, "results", len(results))
	return results, nil
}
