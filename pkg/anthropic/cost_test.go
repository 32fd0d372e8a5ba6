package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage TokenUsage
		want  float64
	}{
		{
			name:  "haiku input and output",
			model: "claude-haiku-4-5-20251001",
			usage: TokenUsage{InputTokens: 2_000_000, OutputTokens: 500_000},
			want:  3.60,
		},
		{
			name:  "sonnet input and output",
			model: "claude-sonnet-4-5-20250929",
			usage: TokenUsage{InputTokens: 1_000_000, OutputTokens: 200_000},
			want:  6.00,
		},
		{
			name:  "opus input and output",
			model: "claude-opus-4-6",
			usage: TokenUsage{InputTokens: 100_000, OutputTokens: 100_000},
			want:  9.00,
		},
		{
			// 0.40 input + 0.40 output + 0.20 cache write + 0.024 cache read.
			name:  "cache traffic billed at its own rates",
			model: "claude-haiku-4-5-20251001",
			usage: TokenUsage{
				InputTokens:              500_000,
				OutputTokens:             100_000,
				CacheCreationInputTokens: 200_000,
				CacheReadInputTokens:     300_000,
			},
			want: 1.024,
		},
		{
			name:  "unknown model costs nothing",
			model: "claude-2",
			usage: TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			want:  0,
		},
		{
			name:  "zero usage",
			model: "claude-haiku-4-5-20251001",
			usage: TokenUsage{},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 1e-9)
		})
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 840, OutputTokens: 96}.LogCost("claude-haiku-4-5-20251001", "narrative")
	})
	assert.NotPanics(t, func() {
		TokenUsage{}.LogCost("claude-2", "")
	})
}
