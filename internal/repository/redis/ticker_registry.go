package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
)

// TickerListKey is the well-known key holding the ticker list as a JSON array
const TickerListKey = "TICKER_MASTER_LIST"

// Compile-time check
var _ optionsflow.TickerRegistry = (*TickerRegistry)(nil)

// TickerRegistry implements optionsflow.TickerRegistry using Redis
type TickerRegistry struct {
	client redis.Cmdable
}

// NewTickerRegistry creates a new ticker registry
func NewTickerRegistry(client redis.Cmdable) *TickerRegistry {
	return &TickerRegistry{client: client}
}

// List returns the stored tickers in order; a missing key is an empty list
func (r *TickerRegistry) List(ctx context.Context) ([]string, error) {
	data, err := r.client.Get(ctx, TickerListKey).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s from redis", TickerListKey)
	}

	tickers := make([]string, 0)
	if err := json.Unmarshal([]byte(data), &tickers); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s", TickerListKey)
	}

	return tickers, nil
}

// Replace overwrites the list with the normalized tickers
func (r *TickerRegistry) Replace(ctx context.Context, tickers []string) error {
	data, err := json.Marshal(optionsflow.NormalizeTickers(tickers))
	if err != nil {
		return errors.Wrap(err, "failed to marshal tickers")
	}

	if err := r.client.Set(ctx, TickerListKey, string(data), 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to save %s to redis", TickerListKey)
	}

	return nil
}
