package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// History handles GET /api/kv/history/{ticker}, newest record first
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		h.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	if ticker == "" {
		h.writeError(w, http.StatusBadRequest, "Ticker parameter is required.")
		return
	}

	records, err := h.history.QueryByTicker(r.Context(), ticker)
	if err != nil {
		h.log.Errorw("History query failed", "ticker", ticker, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}
