package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/internal/types"
	"github.com/xhad/glov/pkg/pipeline"
)

type EmbedRequest struct {
	URL   string `json:"url" binding:"required,url"`
	Query string `json:"query" binding:"required,min=3"`
}

type EmbedResponse struct {
	Chunks []string `json:"chunks"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

// StatusFor maps an error kind to the HTTP status returned to callers.
func StatusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindTimeout:
		return http.StatusRequestTimeout
	case types.KindEmbeddingFailure, types.KindStoreFailure:
		return http.StatusInternalServerError
	case types.KindInvalidInput, types.KindTooLarge, types.KindUnparseablePDF, types.KindUpstreamUnavailable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Detail: err.Error(),
			Kind:   string(types.KindInvalidInput),
		})
		return
	}

	// a disconnecting client must not abort a run that is already writing
	ctx := context.WithoutCancel(c.Request.Context())
	resp, err := s.runner.Run(ctx, pipeline.Request{URL: req.URL, Query: req.Query})
	if err != nil {
		writeError(c, err)
		return
	}

	chunks := resp.Texts()
	logger.FromContext(ctx).Debug("embed request served", "chunks", len(chunks))
	c.JSON(http.StatusOK, EmbedResponse{Chunks: chunks})
}

func writeError(c *gin.Context, err error) {
	var perr *types.Error
	if !errors.As(err, &perr) {
		perr = types.NewError(types.KindStoreFailure, "", "internal error", err)
	}
	detail := perr.Detail
	if perr.Err != nil && perr.Kind != types.KindTimeout {
		detail += ": " + perr.Err.Error()
	}
	c.JSON(StatusFor(perr.Kind), ErrorResponse{Detail: detail, Kind: string(perr.Kind)})
}
