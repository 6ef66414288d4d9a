package optionsflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFixed_RoundsExactBinaryValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{101.5 * 0.99, "100.48"}, // 100.484999...
		{1.005, "1.00"},
		{2.675, "2.67"},
		{0.125, "0.13"}, // exact tie rounds up
		{1.115, "1.11"},
		{-1.005, "-1.00"},
		{-0.125, "-0.13"},
		{100, "100.00"},
		{0, "0.00"},
		{0.0001, "0.00"},
		{1234567.891, "1234567.89"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFixed(tt.in), "formatFixed(%v)", tt.in)
	}
}
