package handlers

import (
	"net/http"
	"strings"

	"clipdex/internal/contextutil"
)

// OpsHandler triggers out-of-cycle scan and index runs. The triggers hand
// off to the background loop, so both endpoints return 202 immediately; the
// loop coalesces a trigger that arrives while a run is already in flight.
type OpsHandler struct {
	triggerScan  func()
	triggerIndex func(force bool)
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(triggerScan func(), triggerIndex func(force bool)) *OpsHandler {
	return &OpsHandler{triggerScan: triggerScan, triggerIndex: triggerIndex}
}

// Scan queues a scan cycle.
func (h *OpsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "scan requested")
	h.triggerScan()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan queued"})
}

// Index queues an index update. ?force=true re-embeds every READY video
// regardless of fingerprints.
func (h *OpsHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force := false
	if param := r.URL.Query().Get("force"); param != "" {
		force = strings.ToLower(param) == "true" || param == "1"
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index update requested", "force", force)
	h.triggerIndex(force)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "index update queued"})
}
