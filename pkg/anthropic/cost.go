package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption for one API call.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Cache writes bill at 1.25x the input rate, cache reads at a tenth of it.
const (
	cacheWriteFactor = 1.25
	cacheReadFactor  = 0.10
)

// price holds $/MTok rates for one model.
type price struct {
	input  float64
	output float64
}

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-6":            {input: 15.00, output: 75.00},
}

// EstimateCost returns the estimated USD cost of the usage under the given
// model's pricing, 0 when the model is unknown.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	perM := func(tokens int64, rate float64) float64 {
		return float64(tokens) / 1e6 * rate
	}
	return perM(u.InputTokens, p.input) +
		perM(u.OutputTokens, p.output) +
		perM(u.CacheCreationInputTokens, p.input*cacheWriteFactor) +
		perM(u.CacheReadInputTokens, p.input*cacheReadFactor)
}

// LogCost records usage and estimated cost against a named phase of the run.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("model call cost",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
