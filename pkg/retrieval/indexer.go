package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
)

// recordNamespace scopes chunk ids so they cannot collide with UUIDs minted
// elsewhere.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xhad/glov/chunks"))

// Indexer embeds chunks and writes them to the vector store.
type Indexer struct {
	embedder types.Embedder
	store    types.VectorStore
}

func NewIndexer(embedder types.Embedder, store types.VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// RecordID derives a stable id from the chunk's document and position, so
// ingesting the same document twice overwrites its own records and two
// documents never share an id.
func RecordID(source string, sequenceIndex int) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s#%d", source, sequenceIndex))).String()
}

// Index stores every chunk in the collection. An empty chunk list is a
// no-op. There is no rollback if the store fails part way.
func (ix *Indexer) Index(ctx context.Context, chunks []models.Chunk, collection string) error {
	log := logger.FromContext(ctx)

	if len(chunks) == 0 {
		log.Debug("no chunks to index", "collection", collection)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return types.AsError(err, types.KindEmbeddingFailure, types.StageIndex)
	}
	if len(vectors) != len(chunks) {
		return types.Errorf(types.KindEmbeddingFailure, types.StageIndex,
			"got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	records := make([]models.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		source, _ := chunk.Metadata["source"].(string)
		records[i] = models.VectorRecord{
			ID:        RecordID(source, chunk.SequenceIndex),
			Content:   chunk.Content,
			Embedding: vectors[i],
			Metadata:  chunk.Metadata,
		}
	}

	if err := ix.store.Upsert(ctx, collection, records); err != nil {
		return types.AsError(err, types.KindStoreFailure, types.StageIndex)
	}

	log.Info("indexed chunks", "collection", collection, "count", len(records))
	return nil
}
