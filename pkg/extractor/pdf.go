package extractor

import (
	"context"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/models"
	"github.com/xhad/glov/internal/types"
)

const pdfMIME = "application/pdf"

// PDFExtractor turns a PDF on disk into one Document per page.
type PDFExtractor struct {
	password string
}

type Option func(*PDFExtractor)

func WithPassword(password string) Option {
	return func(e *PDFExtractor) {
		e.password = password
	}
}

func New(opts ...Option) *PDFExtractor {
	e := &PDFExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *PDFExtractor) Extract(ctx context.Context, file *models.TempFile) (docs []models.Document, err error) {
	log := logger.FromContext(ctx)

	mtype, err := mimetype.DetectFile(file.Path)
	if err != nil {
		return nil, types.NewError(types.KindUnparseablePDF, types.StageExtract, "cannot read downloaded file", err)
	}
	if !mtype.Is(pdfMIME) {
		return nil, types.Errorf(types.KindUnparseablePDF, types.StageExtract,
			"downloaded content is %s, not a PDF", mtype.String())
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, types.NewError(types.KindUnparseablePDF, types.StageExtract, "cannot open downloaded file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, types.NewError(types.KindUnparseablePDF, types.StageExtract, "cannot stat downloaded file", err)
	}

	// the PDF parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = types.NewError(types.KindUnparseablePDF, types.StageExtract,
				"PDF could not be parsed", fmt.Errorf("parser panic: %v", r))
		}
	}()

	var opts []documentloaders.PDFOptions
	if e.password != "" {
		opts = append(opts, documentloaders.WithPassword(e.password))
	}

	pages, err := documentloaders.NewPDF(f, info.Size(), opts...).Load(ctx)
	if err != nil {
		return nil, types.NewError(types.KindUnparseablePDF, types.StageExtract, "PDF could not be parsed", err)
	}
	if len(pages) == 0 {
		return nil, types.Errorf(types.KindUnparseablePDF, types.StageExtract, "PDF has no pages")
	}

	docs = make([]models.Document, 0, len(pages))
	for _, page := range pages {
		metadata := make(map[string]interface{}, len(page.Metadata)+2)
		for k, v := range page.Metadata {
			metadata[k] = v
		}
		metadata["source"] = file.SourceURL
		docs = append(docs, models.Document{
			PageContent: page.PageContent,
			Metadata:    metadata,
		})
	}

	log.Debug("extracted PDF", "url", file.SourceURL, "path", file.Path, "pages", len(docs))
	return docs, nil
}
