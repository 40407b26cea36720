package pipeline

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
	"github.com/xhad/glov/pkg/metrics"
)

type Config struct {
	Collection     string
	TopK           int
	MinQueryLength int
}

// Dependencies are the stage implementations a Pipeline drives.
type Dependencies struct {
	Fetcher   types.Fetcher
	Extractor types.Extractor
	Splitter  types.Splitter
	Indexer   types.Indexer
	Searcher  types.Searcher
	Metrics   *metrics.Metrics

	// OnStage, if set, is called as each stage begins.
	OnStage func(stage string)
}

type Request struct {
	URL        string
	Query      string
	Collection string // empty means the configured collection
	TopK       int    // 0 means the configured value
}

type Response struct {
	Results []models.QueryResult
	Pages   int
	Chunks  int
}

// Texts returns the content of each result, best match first.
func (r *Response) Texts() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Content
	}
	return out
}

// Pipeline ingests one PDF and answers one query against the collection.
// Runs are independent; a Pipeline is safe for concurrent use when its
// dependencies are.
type Pipeline struct {
	config Config
	deps   Dependencies
}

func New(config Config, deps Dependencies) *Pipeline {
	if config.Collection == "" {
		config.Collection = "my_docs"
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.MinQueryLength <= 0 {
		config.MinQueryLength = 3
	}
	return &Pipeline{config: config, deps: deps}
}

// Run validates the URL, checks the advertised size, downloads, extracts,
// chunks, indexes and finally searches. The first failing stage ends the
// run and its error is returned as a *types.Error. Chunks already written
// by a failed run stay in the store.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	collection := req.Collection
	if collection == "" {
		collection = p.config.Collection
	}
	k := req.TopK
	if k <= 0 {
		k = p.config.TopK
	}

	log := logger.FromContext(ctx).With("url", req.URL, "collection", collection)
	ctx = logger.ContextWithLogger(ctx, log)
	start := time.Now()

	resp, err := p.run(ctx, req, collection, k)
	if err != nil {
		perr := types.AsError(err, types.KindInvalidInput, types.StageValidate)
		log.Error("pipeline failed", "stage", perr.Stage, "kind", perr.Kind, "error", perr)
		p.deps.Metrics.Failure(perr.Stage, string(perr.Kind))
		return nil, perr
	}

	p.deps.Metrics.Success(resp.Chunks)
	log.Info("pipeline finished", "pages", resp.Pages, "chunks", resp.Chunks,
		"results", len(resp.Results), "elapsed", time.Since(start))
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, collection string, k int) (*Response, error) {
	log := logger.FromContext(ctx)

	if utf8.RuneCountInString(req.Query) < p.config.MinQueryLength {
		return nil, types.Errorf(types.KindInvalidInput, types.StageValidate,
			"query must be at least %d characters", p.config.MinQueryLength)
	}

	err := p.stage(ctx, types.StageValidate, types.KindInvalidInput, func() error {
		return p.deps.Fetcher.Validate(req.URL)
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, types.StageSize, types.KindUpstreamUnavailable, func() error {
		return p.deps.Fetcher.CheckSize(ctx, req.URL)
	})
	if err != nil {
		return nil, err
	}

	var file *models.TempFile
	err = p.stage(ctx, types.StageDownload, types.KindUpstreamUnavailable, func() (err error) {
		file, err = p.deps.Fetcher.Download(ctx, req.URL)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Release(); err != nil {
			log.Warn("failed to remove temporary file", "path", file.Path, "error", err)
		}
	}()
	p.deps.Metrics.Downloaded(file.Size)

	var docs []models.Document
	err = p.stage(ctx, types.StageExtract, types.KindUnparseablePDF, func() (err error) {
		docs, err = p.deps.Extractor.Extract(ctx, file)
		return err
	})
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	err = p.stage(ctx, types.StageChunk, types.KindUnparseablePDF, func() (err error) {
		chunks, err = p.deps.Splitter.Split(docs)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug("document chunked", "pages", len(docs), "chunks", len(chunks))

	err = p.stage(ctx, types.StageIndex, types.KindStoreFailure, func() error {
		return p.deps.Indexer.Index(ctx, chunks, collection)
	})
	if err != nil {
		return nil, err
	}

	var results []models.QueryResult
	err = p.stage(ctx, types.StageSearch, types.KindStoreFailure, func() (err error) {
		results, err = p.deps.Searcher.Search(ctx, req.Query, collection, k)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Response{Results: results, Pages: len(docs), Chunks: len(chunks)}, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fallback types.ErrorKind, fn func() error) error {
	log := logger.FromContext(ctx)
	if p.deps.OnStage != nil {
		p.deps.OnStage(name)
	}
	log.Debug("stage started", "stage", name)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	p.deps.Metrics.ObserveStage(name, elapsed)
	if err != nil {
		log.Debug("stage failed", "stage", name, "elapsed", elapsed)
		return types.AsError(err, fallback, name)
	}
	log.Debug("stage finished", "stage", name, "elapsed", elapsed)
	return nil
}
