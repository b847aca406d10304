package domain

import (
	"context"
	"errors"
	"fmt"
)

// Stage identifies a blocking pipeline stage for error tagging.
type Stage string

const (
	StageEmbed  Stage = "embed"
	StageFetch  Stage = "fetch"
	StageRerank Stage = "rerank"
)

// Failure kinds surfaced to callers. A failed search carries exactly one.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrEmbeddingFailure = errors.New("embedding failure")
	ErrRetrievalFailure = errors.New("retrieval failure")
	ErrRerankFailure    = errors.New("rerank failure")
	ErrStageTimeout     = errors.New("stage timeout")
)

// StageError tags an underlying error with the failing stage and its kind.
// Both the kind sentinel and the cause are visible to errors.Is/As.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewStageError wraps err as a stage-tagged failure of the given kind.
// A deadline expiry is reported as ErrStageTimeout regardless of kind, so
// callers can distinguish a slow collaborator from a broken one.
func NewStageError(stage Stage, kind error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrStageTimeout
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// FailingStage reports which stage produced err, if any.
func FailingStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
