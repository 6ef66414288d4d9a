package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/internal/testsupport"
	derivworkers "optionsflow/internal/workers/derivatives"
	"optionsflow/pkg/errors"
)

func sampleResult(t *testing.T) derivworkers.BatchResult {
	t.Helper()

	snapshot, err := testsupport.BullishChain("AAPL", 100).Normalize()
	require.NoError(t, err)

	return derivworkers.BatchResult{
		Duration: 1500 * time.Millisecond,
		Analyzed: 1,
		Results: []derivworkers.TickerResult{
			{Ticker: "AAPL", Payload: optionsflow.Analyze(snapshot)},
			{Ticker: "DOWN", Err: errors.Wrap(errors.ErrSourceUnavailable, "status 403")},
		},
	}
}

func TestWritePayloads_SkipsFailures(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writePayloads(&out, sampleResult(t)))

	var payloads []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payloads))
	require.Len(t, payloads, 1)
	assert.Equal(t, "AAPL", payloads[0]["ticker"])
}

func TestWriteSummary(t *testing.T) {
	var out bytes.Buffer
	writeSummary(&out, sampleResult(t))

	text := out.String()
	assert.Contains(t, text, "AAPL")
	assert.Contains(t, text, "up")
	assert.Contains(t, text, "DOWN   failed")
	assert.Contains(t, text, "analyzed 1 of 2 tickers, 8,600 contracts traded, took 1.5s")
}
