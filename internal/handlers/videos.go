package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clipdex/internal/contextutil"
	"clipdex/internal/storage"
)

// VideosHandler handles HTTP requests for catalog records.
type VideosHandler struct {
	videos storage.VideoStore
	index  IndexService
}

// NewVideosHandler creates a new VideosHandler.
func NewVideosHandler(videos storage.VideoStore, index IndexService) *VideosHandler {
	return &VideosHandler{videos: videos, index: index}
}

// ListResponse is the payload for video listings.
type ListResponse struct {
	Count  int                    `json:"count"`
	Videos []*storage.VideoRecord `json:"videos"`
}

// List returns catalog records, optionally filtered by ?status=.
func (h *VideosHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	status := strings.ToUpper(r.URL.Query().Get("status"))
	switch status {
	case "", storage.StatusReady, storage.StatusNeedsText, storage.StatusError, storage.StatusDeleted:
	default:
		writeError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	videos, err := h.videos.List(ctx, status)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list videos", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Count: len(videos), Videos: videos})
}

// TelegramFileIDRequest is the payload for storing a delivery handle.
type TelegramFileIDRequest struct {
	TelegramFileID string `json:"telegram_file_id"`
}

// ServeHTTP dispatches per-video operations. Video IDs are folder paths and
// contain slashes, so the route is a wildcard and the operation is selected
// by path suffix:
//
//	GET    /api/videos/<id>                   fetch one record
//	PUT    /api/videos/<id>/telegram-file-id  store the delivery handle
//	POST   /api/videos/<id>/index             re-index one video
//	DELETE /api/videos/<id>/index             remove one video from the index
func (h *VideosHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(chi.URLParam(r, "*"), "/")
	if tail == "" {
		writeError(w, http.StatusNotFound, "Video ID is required")
		return
	}

	switch {
	case strings.HasSuffix(tail, "/index"):
		h.indexOp(w, r, strings.TrimSuffix(tail, "/index"))
	case strings.HasSuffix(tail, "/telegram-file-id"):
		h.setTelegramFileID(w, r, strings.TrimSuffix(tail, "/telegram-file-id"))
	default:
		h.get(w, r, tail)
	}
}

func (h *VideosHandler) get(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	video, err := h.videos.Get(ctx, videoID)
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to get video", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get video")
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (h *VideosHandler) setTelegramFileID(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TelegramFileIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TelegramFileID == "" {
		writeError(w, http.StatusBadRequest, "telegram_file_id is required")
		return
	}

	if err := h.videos.SetTelegramFileID(ctx, videoID, req.TelegramFileID); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, "Video not found")
			return
		}
		logger.ErrorContext(ctx, "failed to set telegram file id", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store telegram file id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VideosHandler) indexOp(w http.ResponseWriter, r *http.Request, videoID string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	switch r.Method {
	case http.MethodPost:
		if err := h.index.IndexVideo(ctx, videoID); err != nil {
			if err == storage.ErrNotFound {
				writeError(w, http.StatusNotFound, "Video not found")
				return
			}
			logger.ErrorContext(ctx, "failed to index video", "video_id", videoID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to index video")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "indexed", "video_id": videoID})
	case http.MethodDelete:
		if err := h.index.RemoveVideo(ctx, videoID); err != nil {
			logger.ErrorContext(ctx, "failed to remove video from index", "video_id", videoID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to remove video from index")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "video_id": videoID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
