package usecase

import (
	"context"
	"log/slog"
	"time"

	"retrieval-pipeline/internal/domain"
)

// StreamEventKind tags events on an answer stream.
type StreamEventKind string

const (
	StreamEventKindMeta  StreamEventKind = "meta"
	StreamEventKindDelta StreamEventKind = "delta"
	StreamEventKindDone  StreamEventKind = "done"
	StreamEventKindError StreamEventKind = "error"
)

// StreamEvent is one event on an answer stream.
type StreamEvent struct {
	Kind    StreamEventKind
	Payload any
}

// StreamMeta is emitted once, before any deltas, and carries the retrieved
// passages the answer is grounded on.
type StreamMeta struct {
	RetrievalID string
	Results     []domain.RankedCandidate
}

// AnswerInput defines one streamed-answer request.
type AnswerInput struct {
	Query         string
	NResults      int
	Keyword       string
	RerankEnabled bool
}

// AnswerUsecase retrieves context for a query and streams a grounded answer.
// The channel is closed after the final event; the caller cancels by
// cancelling ctx and ceasing consumption.
type AnswerUsecase interface {
	Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent
}

type answerUsecase struct {
	search    SearchUsecase
	generator domain.AnswerGenerator
	logger    *slog.Logger
}

// NewAnswerUsecase creates a new AnswerUsecase.
func NewAnswerUsecase(search SearchUsecase, generator domain.AnswerGenerator, logger *slog.Logger) AnswerUsecase {
	return &answerUsecase{search: search, generator: generator, logger: logger}
}

func (u *answerUsecase) Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)

		start := time.Now()

		out, err := u.search.Execute(ctx, SearchInput{
			Query:         input.Query,
			NResults:      input.NResults,
			Keyword:       input.Keyword,
			RerankEnabled: input.RerankEnabled,
		})
		if err != nil {
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}

		if !u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: StreamMeta{
			RetrievalID: out.RetrievalID,
			Results:     out.Results,
		}}) {
			return
		}

		prompt := BuildAnswerPrompt(input.Query, out.Results)
		chunks, err := u.generator.GenerateStream(ctx, prompt)
		if err != nil {
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}

		for chunk := range chunks {
			if chunk.Delta != "" {
				if !u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: chunk.Delta}) {
					return
				}
			}
			if chunk.Done {
				break
			}
		}

		u.logger.Info("answer_stream_completed",
			slog.String("retrieval_id", out.RetrievalID),
			slog.String("model", u.generator.ModelName()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindDone})
	}()
	return events
}

// sendEvent delivers an event unless the consumer has gone away.
func (u *answerUsecase) sendEvent(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
