package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/pkg/store"
)

// createTestDatabase starts a PostgreSQL container with pgvector installed.
func createTestDatabase(ctx context.Context, t *testing.T) string {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("glov"),
		postgres.WithUsername("glov"),
		postgres.WithPassword("glov"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgContainer.Terminate(terminateCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestVectorStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: createTestDatabase(ctx, t),
		TableName:  "test_embeddings",
		VectorDim:  3,
		UseJSONB:   true,
	})
	require.NoError(t, err)
	defer vs.Close()

	records := []models.VectorRecord{
		{ID: "x", Content: "points along x", Embedding: []float32{1, 0, 0}, Metadata: map[string]interface{}{"page": 1}},
		{ID: "y", Content: "points along y", Embedding: []float32{0, 1, 0}, Metadata: map[string]interface{}{"page": 2}},
		{ID: "xy", Content: "diagonal", Embedding: []float32{1, 1, 0}, Metadata: map[string]interface{}{"page": 3}},
	}
	require.NoError(t, vs.Upsert(ctx, "docs", records))

	// other collections are invisible to searches
	require.NoError(t, vs.Upsert(ctx, "other", records[:1]))

	t.Run("Should rank by cosine similarity", func(t *testing.T) {
		results, err := vs.SimilaritySearch(ctx, "docs", []float32{1, 0.1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "points along x", results[0].Content)
		assert.Equal(t, "diagonal", results[1].Content)
		assert.Greater(t, results[0].Score, results[1].Score)
		assert.EqualValues(t, 1, results[0].Metadata["page"])
	})

	t.Run("Should overwrite records with the same id", func(t *testing.T) {
		updated := records[0]
		updated.Content = "points along x, revised"
		require.NoError(t, vs.Upsert(ctx, "docs", []models.VectorRecord{updated}))

		n, err := vs.Count(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		results, err := vs.SimilaritySearch(ctx, "docs", []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "points along x, revised", results[0].Content)
	})

	t.Run("Should return fewer than k when the collection is small", func(t *testing.T) {
		results, err := vs.SimilaritySearch(ctx, "other", []float32{0, 1, 0}, 5)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}
