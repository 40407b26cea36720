package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
)

// MemoryStore is a brute-force vector store kept in process memory. It
// ranks exactly like VectorStore and is used for one-off queries that do
// not need persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	dim         int
	collections map[string]map[string]models.VectorRecord
}

func NewMemory(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, collections: make(map[string]map[string]models.VectorRecord)}
}

func (m *MemoryStore) Upsert(_ context.Context, collection string, records []models.VectorRecord) error {
	for _, rec := range records {
		if m.dim > 0 && len(rec.Embedding) != m.dim {
			return types.Errorf(types.KindStoreFailure, "",
				"record %s has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]models.VectorRecord)
		m.collections[collection] = coll
	}
	for _, rec := range records {
		rec.Content = sanitizeUTF8(rec.Content)
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		coll[rec.ID] = rec
	}
	return nil
}

func (m *MemoryStore) SimilaritySearch(_ context.Context, collection string, embedding []float32, k int) ([]models.QueryResult, error) {
	if k <= 0 {
		k = 5
	}
	if m.dim > 0 && len(embedding) != m.dim {
		return nil, types.Errorf(types.KindStoreFailure, "",
			"query has %d dimensions, store expects %d", len(embedding), m.dim)
	}

	m.mu.RLock()
	results := make([]models.QueryResult, 0, len(m.collections[collection]))
	for _, rec := range m.collections[collection] {
		results = append(results, models.QueryResult{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Score:    cosineSimilarity(embedding, rec.Embedding),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection]), nil
}

func (m *MemoryStore) Close() {}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
