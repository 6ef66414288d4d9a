package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const defaultSnapshotWindow = 30 * 24 * time.Hour

// Snapshots handles GET /api/snapshots/{ticker}?since=RFC3339&limit=N over the analytics store
func (h *Handlers) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusNotFound, "Snapshot analytics are disabled")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))

	since := time.Now().Add(-defaultSnapshotWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	rows, err := h.snapshots.GetSnapshotHistory(r.Context(), ticker, since, limit)
	if err != nil {
		h.log.Errorw("Snapshot query failed", "ticker", ticker, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.writeJSON(w, http.StatusOK, rows)
}
