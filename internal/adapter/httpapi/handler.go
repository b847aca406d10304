package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"retrieval-pipeline/internal/domain"
	"retrieval-pipeline/internal/usecase"

	"github.com/labstack/echo/v4"
)

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query         string `json:"query"`
	NResults      int    `json:"n_results"`
	Keyword       string `json:"keyword,omitempty"`
	RerankEnabled *bool  `json:"rerank_enabled,omitempty"`
	OverFetch     int    `json:"over_fetch,omitempty"`
}

// SearchResult is one ranked passage in a search response.
type SearchResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	SourceRef  string  `json:"source_ref"`
	Similarity float64 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
	Fused      float64 `json:"fused"`
	Reranked   bool    `json:"reranked"`
}

// SearchResponse is the body of a successful POST /v1/search.
type SearchResponse struct {
	RetrievalID string         `json:"retrieval_id"`
	Reranked    bool           `json:"reranked"`
	Results     []SearchResult `json:"results"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

type Handler struct {
	search usecase.SearchUsecase
	answer usecase.AnswerUsecase
}

func NewHandler(search usecase.SearchUsecase, answer usecase.AnswerUsecase) *Handler {
	return &Handler{search: search, answer: answer}
}

// Register mounts the API routes on e.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/v1/search", h.Search)
	e.POST("/v1/answer/stream", h.AnswerStream)
}

// Search runs the retrieval pipeline for a query.
// (POST /v1/search)
func (h *Handler) Search(ctx echo.Context) error {
	var req SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	// Rerank is opt-out, not opt-in.
	rerank := true
	if req.RerankEnabled != nil {
		rerank = *req.RerankEnabled
	}

	output, err := h.search.Execute(ctx.Request().Context(), usecase.SearchInput{
		Query:         req.Query,
		NResults:      req.NResults,
		Keyword:       req.Keyword,
		RerankEnabled: rerank,
		OverFetch:     req.OverFetch,
	})
	if err != nil {
		status, body := errorResponse(err)
		return ctx.JSON(status, body)
	}

	results := make([]SearchResult, 0, len(output.Results))
	for _, r := range output.Results {
		results = append(results, SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			SourceRef:  r.SourceRef,
			Similarity: r.Similarity,
			Relevance:  r.Relevance,
			Fused:      r.Fused,
			Reranked:   r.Reranked,
		})
	}

	return ctx.JSON(http.StatusOK, SearchResponse{
		RetrievalID: output.RetrievalID,
		Reranked:    output.Reranked,
		Results:     results,
	})
}

// AnswerStream retrieves context and streams a grounded answer as
// server-sent events: one meta event carrying the passages, then delta
// events, then done. Errors after the stream starts arrive as an error
// event rather than an HTTP status.
// (POST /v1/answer/stream)
func (h *Handler) AnswerStream(ctx echo.Context) error {
	var req SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	rerank := true
	if req.RerankEnabled != nil {
		rerank = *req.RerankEnabled
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	reqCtx := ctx.Request().Context()
	events := h.answer.Stream(reqCtx, usecase.AnswerInput{
		Query:         req.Query,
		NResults:      req.NResults,
		Keyword:       req.Keyword,
		RerankEnabled: rerank,
	})

	for ev := range events {
		if err := writeSSE(resp, ev); err != nil {
			return nil
		}
		resp.Flush()
		if ev.Kind == usecase.StreamEventKindDone || ev.Kind == usecase.StreamEventKindError {
			break
		}
	}
	return nil
}

func writeSSE(w http.ResponseWriter, ev usecase.StreamEvent) error {
	var data []byte
	switch p := ev.Payload.(type) {
	case nil:
		data = []byte("{}")
	case usecase.StreamMeta:
		results := make([]SearchResult, 0, len(p.Results))
		for _, r := range p.Results {
			results = append(results, SearchResult{
				ID:         r.ID,
				Content:    r.Content,
				SourceRef:  r.SourceRef,
				Similarity: r.Similarity,
				Relevance:  r.Relevance,
				Fused:      r.Fused,
				Reranked:   r.Reranked,
			})
		}
		b, err := json.Marshal(map[string]any{
			"retrieval_id": p.RetrievalID,
			"results":      results,
		})
		if err != nil {
			return err
		}
		data = b
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		data = b
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// errorResponse maps pipeline errors to HTTP statuses: bad input is the
// caller's fault, a stage timeout is a gateway timeout, everything else is
// an upstream failure.
func errorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error()}
	if stage, ok := domain.FailingStage(err); ok {
		body.Stage = string(stage)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		body.Kind = "invalid_argument"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrStageTimeout):
		body.Kind = "timeout"
		return http.StatusGatewayTimeout, body
	case errors.Is(err, domain.ErrEmbeddingFailure):
		body.Kind = "embedding_failure"
	case errors.Is(err, domain.ErrRetrievalFailure):
		body.Kind = "retrieval_failure"
	case errors.Is(err, domain.ErrRerankFailure):
		body.Kind = "rerank_failure"
	}
	return http.StatusBadGateway, body
}
