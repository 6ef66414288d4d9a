package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

type memoryRegistry struct {
	tickers []string
	err     error
}

func (m *memoryRegistry) List(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.tickers == nil {
		return []string{}, nil
	}
	return m.tickers, nil
}

func (m *memoryRegistry) Replace(ctx context.Context, tickers []string) error {
	if m.err != nil {
		return m.err
	}
	m.tickers = optionsflow.NormalizeTickers(tickers)
	return nil
}

type memoryHistory struct {
	records   []optionsflow.AnalysisRecord
	err       error
	lastQuery string
}

func (m *memoryHistory) InsertBatch(ctx context.Context, records []optionsflow.AnalysisRecord) error {
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryHistory) QueryByTicker(ctx context.Context, ticker string) ([]optionsflow.AnalysisRecord, error) {
	m.lastQuery = ticker
	if m.err != nil {
		return nil, m.err
	}
	out := []optionsflow.AnalysisRecord{}
	for _, r := range m.records {
		if r.Ticker == ticker {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubQuotes struct {
	body      []byte
	err       error
	lastQuery string
}

func (s *stubQuotes) FetchRaw(ctx context.Context, ticker string, rawQuery string) ([]byte, error) {
	s.lastQuery = rawQuery
	return s.body, s.err
}

type stubSnapshots struct {
	since time.Time
	limit int
}

func (s *stubSnapshots) InsertSnapshots(ctx context.Context, snapshots []optionsflow.OptionsSnapshot) error {
	return nil
}

func (s *stubSnapshots) GetSnapshotHistory(ctx context.Context, ticker string, since time.Time, limit int) ([]optionsflow.OptionsSnapshot, error) {
	s.since, s.limit = since, limit
	return []optionsflow.OptionsSnapshot{{Ticker: ticker, PutCallRatio: 0.8}}, nil
}

func newRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/kv/tickers", h.Tickers)
	r.HandleFunc("/api/kv/history", h.History)
	r.HandleFunc("/api/kv/history/", h.History)
	r.HandleFunc("/api/kv/history/{ticker}", h.History)
	r.HandleFunc("/api/quote/{ticker}", h.Quote)
	r.HandleFunc("/api/snapshots/{ticker}", h.Snapshots)
	return r
}

func serve(t *testing.T, h *Handlers, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)
	return rec
}

func TestTickers_GetEmptyRegistry(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/kv/tickers", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTickers_PostReplacesAndNormalizes(t *testing.T) {
	registry := &memoryRegistry{tickers: []string{"OLD"}}
	h := New(registry, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodPost, "/api/kv/tickers", `[" aapl ","TSLA","","AAPL"]`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, []string{"AAPL", "TSLA"}, registry.tickers)

	rec = serve(t, h, http.MethodGet, "/api/kv/tickers", "")
	assert.JSONEq(t, `["AAPL","TSLA"]`, rec.Body.String())
}

func TestTickers_InvalidBody(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodPost, "/api/kv/tickers", `{"ticker":"AAPL"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTickers_MethodNotAllowed(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodDelete, "/api/kv/tickers", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestTickers_RegistryFailure(t *testing.T) {
	h := New(&memoryRegistry{err: errors.New("redis down")}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/kv/tickers", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistory_UppercasesTicker(t *testing.T) {
	history := &memoryHistory{records: []optionsflow.AnalysisRecord{
		{Ticker: "AAPL", Timestamp: 1721999400000, CurrentPrice: 227.52, AnalysisData: `{"ticker":"AAPL"}`},
		{Ticker: "TSLA", Timestamp: 1721999400000, CurrentPrice: 219.8, AnalysisData: `{}`},
	}}
	h := New(&memoryRegistry{}, history, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/kv/history/aapl", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", history.lastQuery)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "AAPL", rows[0]["ticker"])
	assert.Equal(t, 227.52, rows[0]["current_price"])
	assert.Equal(t, `{"ticker":"AAPL"}`, rows[0]["analysis_data"])
}

func TestHistory_UnknownTickerReturnsEmptyArray(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/kv/history/ZZZZ", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistory_Errors(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{err: errors.New("db down")}, nil, &stubQuotes{}, logger.Nop())

	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodGet, "/api/kv/history/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPost, "/api/kv/history/AAPL", "").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, h, http.MethodGet, "/api/kv/history/AAPL", "").Code)
}

func TestQuote_PassThrough(t *testing.T) {
	quotes := &stubQuotes{body: []byte(`{"data":{"lastTrade":"LAST TRADE: $1.00"}}`)}
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, quotes, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/quote/AAPL?assetclass=stocks&limit=60", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "assetclass=stocks&limit=60", quotes.lastQuery)
	assert.JSONEq(t, `{"data":{"lastTrade":"LAST TRADE: $1.00"}}`, rec.Body.String())
}

func TestQuote_UpstreamFailure(t *testing.T) {
	quotes := &stubQuotes{err: errors.Wrap(errors.ErrSourceUnavailable, "status 403")}
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, quotes, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/quote/AAPL", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "status 403")
}

func TestSnapshots(t *testing.T) {
	h := New(&memoryRegistry{}, &memoryHistory{}, nil, &stubQuotes{}, logger.Nop())
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/api/snapshots/AAPL", "").Code)

	snapshots := &stubSnapshots{}
	h = New(&memoryRegistry{}, &memoryHistory{}, snapshots, &stubQuotes{}, logger.Nop())

	rec := serve(t, h, http.MethodGet, "/api/snapshots/aapl?since=2024-07-01T00:00:00Z&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, snapshots.limit)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), snapshots.since)
	assert.Contains(t, rec.Body.String(), `"ticker":"AAPL"`)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodGet, "/api/snapshots/AAPL?limit=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodGet, "/api/snapshots/AAPL?since=yesterday", "").Code)
}
