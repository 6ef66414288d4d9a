package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxTickerBody = 1 << 20

// Tickers handles /api/kv/tickers: GET returns the registry, POST replaces it
func (h *Handlers) Tickers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tickers, err := h.registry.List(r.Context())
		if err != nil {
			h.log.Errorw("Failed to read ticker registry", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		h.writeJSON(w, http.StatusOK, tickers)

	case http.MethodPost:
		var tickers []string
		if err := json.NewDecoder(io.LimitReader(r.Body, maxTickerBody)).Decode(&tickers); err != nil {
			h.writeError(w, http.StatusBadRequest, "Body must be a JSON array of ticker symbols")
			return
		}
		if err := h.registry.Replace(r.Context(), tickers); err != nil {
			h.log.Errorw("Failed to replace ticker registry", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		w.Header().Set("Allow", "GET, POST")
		h.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}
