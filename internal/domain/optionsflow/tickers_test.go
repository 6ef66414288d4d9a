package optionsflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"optionsflow/internal/domain/optionsflow"
)

func TestNormalizeTickers(t *testing.T) {
	got := optionsflow.NormalizeTickers([]string{" aapl", "TSLA", "", "  ", "Aapl", "nvda "})
	assert.Equal(t, []string{"AAPL", "TSLA", "NVDA"}, got)

	assert.Empty(t, optionsflow.NormalizeTickers(nil))
}
