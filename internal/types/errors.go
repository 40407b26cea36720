package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindTooLarge            ErrorKind = "too_large"
	KindTimeout             ErrorKind = "timeout"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUnparseablePDF      ErrorKind = "unparseable_pdf"
	KindEmbeddingFailure    ErrorKind = "embedding_failure"
	KindStoreFailure        ErrorKind = "store_failure"
)

// Pipeline stages, used to tag errors and metrics.
const (
	StageValidate = "validate"
	StageSize     = "size_check"
	StageDownload = "download"
	StageExtract  = "extract"
	StageChunk    = "chunk"
	StageIndex    = "index"
	StageSearch   = "search"
)

// Error is the single error type that crosses the pipeline boundary.
type Error struct {
	Kind   ErrorKind
	Stage  string
	Detail string
	Err    error
}

func NewError(kind ErrorKind, stage, detail string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: detail, Err: err}
}

func Errorf(kind ErrorKind, stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError returns err as an *Error. Untyped errors are wrapped with the
// given fallback kind and stage.
func AsError(err error, fallback ErrorKind, stage string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return e
	}
	return &Error{Kind: fallback, Stage: stage, Detail: err.Error(), Err: err}
}
