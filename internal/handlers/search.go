package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"clipdex/internal/contextutil"
	"clipdex/internal/index"
	"clipdex/internal/storage"
)

//go:generate mockgen -source=search.go -destination=mocks/mock_index_service.go -package=mocks

// IndexService is the part of the index service the API surfaces.
type IndexService interface {
	Search(ctx context.Context, query string, topK int) (*index.Response, error)
	IndexVideo(ctx context.Context, videoID string) error
	RemoveVideo(ctx context.Context, videoID string) error
	Size(ctx context.Context) (int, error)
	Meta(ctx context.Context) (*storage.IndexMeta, error)
}

// SearchHandler handles HTTP requests for catalog search.
type SearchHandler struct {
	index IndexService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(index IndexService) *SearchHandler {
	return &SearchHandler{index: index}
}

// SearchRequest is the POST payload for search queries.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// ServeHTTP answers search queries. GET takes ?q= and optional ?k=; POST
// takes a JSON body. Zero matches is a 200 with low_confidence set, never
// an error.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var query string
	var topK int
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("q")
		if k := r.URL.Query().Get("k"); k != "" {
			n, err := strconv.Atoi(k)
			if err != nil {
				writeError(w, http.StatusBadRequest, "k must be an integer")
				return
			}
			topK = n
		}
	case http.MethodPost:
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WarnContext(ctx, "invalid request body", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		query = req.Query
		topK = req.TopK
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query = strings.TrimSpace(query)
	if query == "" {
		logger.WarnContext(ctx, "empty query in request")
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if topK < 0 {
		topK = 0
	}

	resp, err := h.index.Search(ctx, query, topK)
	if err != nil {
		h.handleSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSearchError maps index service errors to HTTP status codes.
func (h *SearchHandler) handleSearchError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "search failed", "error", err)

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "failed to search vectors") ||
		strings.Contains(errMsg, "qdrant") {
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}
	if strings.Contains(errMsg, "embed") {
		writeError(w, http.StatusBadGateway, "Embedding service error")
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to process search")
}
