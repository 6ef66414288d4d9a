package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Quote handles GET /api/quote/{ticker}: the caller's query string is forwarded
// to the option-chain endpoint and the upstream JSON is returned as is
func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ticker := strings.TrimSpace(mux.Vars(r)["ticker"])
	if ticker == "" {
		h.writeError(w, http.StatusBadRequest, "Ticker parameter is required.")
		return
	}

	body, err := h.quotes.FetchRaw(r.Context(), ticker, r.URL.RawQuery)
	if err != nil {
		h.log.Warnw("Quote proxy failed", "ticker", ticker, "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
