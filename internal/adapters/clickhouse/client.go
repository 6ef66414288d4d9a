package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optionsflow/internal/adapters/config"
	"optionsflow/pkg/errors"
)

const optionsSnapshotsDDL = `
CREATE TABLE IF NOT EXISTS options_snapshots (
	run_id            String,
	ticker            LowCardinality(String),
	timestamp         DateTime64(3, 'UTC'),
	expiration_date   String,
	current_price     Float64,
	call_volume       Int64,
	put_volume        Int64,
	call_oi           Int64,
	put_oi            Int64,
	put_call_ratio    Float64,
	max_pain_price    Float64,
	max_pain_delta    Float64,
	max_volume_strike Float64,
	max_oi_strike     Float64,
	max_voi_strike    Float64,
	direction         LowCardinality(String),
	stance            LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (ticker, timestamp)
`

// Client wraps ClickHouse connection
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to ping clickhouse")
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the options snapshot table when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.Exec(ctx, optionsSnapshotsDDL); err != nil {
		return errors.Wrap(err, "failed to apply clickhouse schema")
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health checks ClickHouse connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec executes a query without returning rows
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}
