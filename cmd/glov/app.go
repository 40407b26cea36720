package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xhad/glov/internal/types"
	"github.com/xhad/glov/pkg/config"
	"github.com/xhad/glov/pkg/extractor"
	"github.com/xhad/glov/pkg/fetcher"
	"github.com/xhad/glov/pkg/llm"
	"github.com/xhad/glov/pkg/metrics"
	"github.com/xhad/glov/pkg/pipeline"
	"github.com/xhad/glov/pkg/processor"
	"github.com/xhad/glov/pkg/retrieval"
	"github.com/xhad/glov/pkg/store"
)

type appOptions struct {
	// memory keeps vectors in process instead of PostgreSQL
	memory  bool
	onStage func(stage string)
}

// app holds the long-lived components shared by every run.
type app struct {
	pipeline *pipeline.Pipeline
	registry *prometheus.Registry
	store    types.VectorStore
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		Token:     cfg.Embedder.Token,
		BatchSize: cfg.Embedder.BatchSize,
		CacheSize: cfg.Embedder.CacheSize,
		Dimension: cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, err
	}

	var vectorStore types.VectorStore
	if opts.memory {
		vectorStore = store.NewMemory(cfg.Database.VectorDim)
	} else {
		vectorStore, err = store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString:  cfg.Database.URL,
			TableName:   cfg.Database.TableName,
			VectorDim:   cfg.Database.VectorDim,
			BatchSize:   cfg.Database.BatchSize,
			SearchLimit: cfg.Search.TopK,
			UseJSONB:    cfg.UseJSONB(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})

	p := pipeline.New(pipeline.Config{
		Collection:     cfg.Database.Collection,
		TopK:           cfg.Search.TopK,
		MinQueryLength: cfg.Search.MinQueryLength,
	}, pipeline.Dependencies{
		Fetcher: fetcher.NewWithConfig(fetcher.FetcherConfig{
			ConnectTimeout: cfg.Fetcher.ConnectTimeout,
			ReadTimeout:    cfg.Fetcher.ReadTimeout,
			MaxBytes:       cfg.Fetcher.MaxBytes,
			RateLimit:      cfg.Fetcher.RateLimit,
			TempDir:        cfg.Fetcher.TempDir,
			UserAgent:      cfg.Fetcher.UserAgent,
		}),
		Extractor: extractor.New(extractor.WithPassword(cfg.Extractor.Password)),
		Splitter:  &proc,
		Indexer:   retrieval.NewIndexer(embedder, vectorStore),
		Searcher:  retrieval.NewSearcher(embedder, vectorStore, cfg.Search.TopK),
		Metrics:   m,
		OnStage:   opts.onStage,
	})

	return &app{pipeline: p, registry: registry, store: vectorStore}, nil
}

func (a *app) Close() {
	a.store.Close()
}
