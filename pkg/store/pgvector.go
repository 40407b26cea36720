package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	UseJSONB    bool
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type VectorStore struct {
	config VectorStoreConfig
	db     DB
	table  string
}

func (c *VectorStoreConfig) applyDefaults() {
	if c.TableName == "" {
		c.TableName = "glov_embeddings"
	}
	if c.VectorDim == 0 {
		c.VectorDim = 1024 // BAAI/bge-m3
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = 5
	}
}

// NewWithConfig connects to PostgreSQL and prepares the schema.
func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := NewWithDB(pool, config)
	if err := vs.Initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

// NewWithDB wraps an existing connection. The schema is not touched until
// Initialize is called.
func NewWithDB(db DB, config VectorStoreConfig) *VectorStore {
	config.applyDefaults()
	return &VectorStore{
		config: config,
		db:     db,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
	}
}

func (vs *VectorStore) Initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	metadataType := "JSON"
	if vs.config.UseJSONB {
		metadataType = "JSONB"
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata %s,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`, vs.table, vs.config.VectorDim, metadataType)

	if _, err := vs.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// hnsw stays accurate on small and empty tables, unlike ivfflat
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)

	if _, err := vs.db.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes records into the collection. A record whose id already
// exists replaces the stored one.
func (vs *VectorStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	for _, rec := range records {
		if len(rec.Embedding) != vs.config.VectorDim {
			return types.Errorf(types.KindStoreFailure, "",
				"record %s has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), vs.config.VectorDim)
		}
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (collection, id, content, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		vs.table)

	for start := 0; start < len(records); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(records))
		if err := vs.upsertBatch(ctx, stmt, collection, records[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (vs *VectorStore) upsertBatch(ctx context.Context, stmt, collection string, records []models.VectorRecord) error {
	tx, err := vs.db.Begin(ctx)
	if err != nil {
		return types.NewError(types.KindStoreFailure, "", "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		metadata, err := json.Marshal(sanitizeMetadata(rec.Metadata))
		if err != nil {
			return types.NewError(types.KindStoreFailure, "", "failed to encode metadata", err)
		}

		_, err = tx.Exec(ctx, stmt,
			collection,
			rec.ID,
			sanitizeUTF8(rec.Content),
			pgvector.NewVector(rec.Embedding),
			string(metadata),
		)
		if err != nil {
			return types.NewError(types.KindStoreFailure, "", fmt.Sprintf("failed to upsert record %s", rec.ID), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewError(types.KindStoreFailure, "", "failed to commit transaction", err)
	}

	return nil
}

// SimilaritySearch returns the k records nearest to embedding by cosine
// distance. Score is 1 - distance, so results come back best first.
func (vs *VectorStore) SimilaritySearch(ctx context.Context, collection string, embedding []float32, k int) ([]models.QueryResult, error) {
	if k <= 0 {
		k = vs.config.SearchLimit
	}
	if len(embedding) != vs.config.VectorDim {
		return nil, types.Errorf(types.KindStoreFailure, "",
			"query has %d dimensions, store expects %d", len(embedding), vs.config.VectorDim)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.table)

	rows, err := vs.db.Query(ctx, query, pgvector.NewVector(embedding), collection, k)
	if err != nil {
		return nil, types.NewError(types.KindStoreFailure, "", "failed to query documents", err)
	}
	defer rows.Close()

	results := make([]models.QueryResult, 0, k)
	for rows.Next() {
		var (
			res      models.QueryResult
			metadata []byte
		)
		if err := rows.Scan(&res.ID, &res.Content, &metadata, &res.Score); err != nil {
			return nil, types.NewError(types.KindStoreFailure, "", "failed to scan row", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &res.Metadata); err != nil {
				return nil, types.NewError(types.KindStoreFailure, "", "failed to decode metadata", err)
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewError(types.KindStoreFailure, "", "failed to read rows", err)
	}

	return results, nil
}

// Count returns the number of records in the collection.
func (vs *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE collection = $1", vs.table)
	if err := vs.db.QueryRow(ctx, query, collection).Scan(&n); err != nil {
		return 0, types.NewError(types.KindStoreFailure, "", "failed to count records", err)
	}
	return n, nil
}

func (vs *VectorStore) Close() {
	if vs.db != nil {
		vs.db.Close()
	}
}

// sanitizeUTF8 drops invalid bytes and NULs, both rejected by PostgreSQL
// text columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		s = string(v)
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func sanitizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			v = sanitizeUTF8(s)
		}
		out[k] = v
	}
	return out
}
