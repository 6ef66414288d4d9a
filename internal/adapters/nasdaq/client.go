package nasdaq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"optionsflow/internal/adapters/config"
	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const maxResponseBytes = 16 << 20

// errCallerCanceled marks failures caused by the caller's context, not the upstream
var errCallerCanceled = errors.New("caller canceled")

// Client is the option-chain source backed by the Nasdaq quote API
type Client struct {
	cfg   config.ChainSourceConfig
	http  *http.Client
	guard *guard
	log   *logger.Logger
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a chain source client
func NewClient(cfg config.ChainSourceConfig, opts ...Option) *Client {
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		guard: newGuard("nasdaq", cfg.RequestsPerMin, cfg.BreakerFailures, cfg.BreakerCooldown),
		log:   logger.Get().With("component", "nasdaq_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchChain retrieves the raw nearest-expiration chain of ticker
func (c *Client) FetchChain(ctx context.Context, ticker string) (*optionsflow.RawSnapshot, error) {
	query := url.Values{}
	query.Set("assetclass", c.cfg.AssetClass)
	query.Set("limit", strconv.Itoa(c.cfg.Limit))

	body, err := c.FetchRaw(ctx, ticker, query.Encode())
	if err != nil {
		return nil, err
	}

	var resp chainResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "decode chain for %s: %v", ticker, err)
	}

	snapshot := resp.toRawSnapshot(ticker)
	c.log.Debugw("Fetched option chain", "ticker", ticker, "rows", len(snapshot.Rows))
	return snapshot, nil
}

// FetchRaw performs the option-chain request with the given query string and
// returns the upstream JSON body untouched
func (c *Client) FetchRaw(ctx context.Context, ticker string, rawQuery string) ([]byte, error) {
	endpoint := c.chainURL(ticker, rawQuery)

	return c.guard.do(ctx, func() ([]byte, error) {
		body, err := c.get(ctx, endpoint)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerCanceled, err)
		}
		return body, err
	})
}

// BreakerState reports the upstream circuit breaker state ("closed", "open", "half-open")
func (c *Client) BreakerState() string {
	return c.guard.state().String()
}

// Healthy is false while the breaker rejects calls
func (c *Client) Healthy() bool {
	return c.guard.state() != gobreaker.StateOpen
}

func (c *Client) chainURL(ticker, rawQuery string) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/quote/" + url.PathEscape(strings.ToUpper(ticker)) + "/option-chain"
	if rawQuery = strings.TrimPrefix(rawQuery, "?"); rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "request %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "read body: %v", err)
	}
	if !json.Valid(body) {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, "upstream returned invalid JSON")
	}

	c.log.Debugw("Upstream responded", "url", endpoint, "bytes", len(body), "took", time.Since(start))
	return body, nil
}
