package handlers

import (
	"net/http"

	"clipdex/internal/contextutil"
	"clipdex/internal/report"
	"clipdex/internal/storage"
)

// ReportHandler serves the system status report.
type ReportHandler struct {
	recorder *report.Recorder
	videos   storage.VideoStore
	index    IndexService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(recorder *report.Recorder, videos storage.VideoStore, index IndexService) *ReportHandler {
	return &ReportHandler{recorder: recorder, videos: videos, index: index}
}

// ReportResponse combines catalog counts, index state, and the outcome of
// the latest scan and index runs.
type ReportResponse struct {
	report.Snapshot
	Catalog   storage.StatusCounts `json:"catalog"`
	IndexSize int                  `json:"index_size"`
	Index     *storage.IndexMeta   `json:"index,omitempty"`
}

// ServeHTTP answers GET /api/report.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := ReportResponse{Snapshot: h.recorder.Snapshot()}

	counts, err := h.videos.Counts(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to count videos", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	resp.Catalog = counts

	size, err := h.index.Size(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to read index size", "error", err)
	} else {
		resp.IndexSize = size
	}

	meta, err := h.index.Meta(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to read index meta", "error", err)
	} else {
		resp.Index = meta
	}

	writeJSON(w, http.StatusOK, resp)
}
