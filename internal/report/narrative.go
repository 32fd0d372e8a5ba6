package report

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/pkg/anthropic"
)

const narrativeSystemPrompt = `You are an operations analyst reviewing daily lead validation results.
Given a JSON report, write a short plain-text briefing (3-6 sentences) for the marketing operations team.
Cover overall volume and quality, the worst sources, any alerts, and one concrete recommendation.
Interpret the numbers rather than restating them.`

// Narrative asks the model for a short analyst briefing over the daily report.
func Narrative(ctx context.Context, client anthropic.Client, model string, rep *DailyReport) (string, error) {
	payload, err := json.Marshal(rep)
	if err != nil {
		return "", eris.Wrap(err, "report: marshal report")
	}

	// The system prompt is identical on every run, so it carries a cache breakpoint.
	temp := 0.2
	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: 1024,
		System: []anthropic.SystemBlock{{
			Text:         narrativeSystemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "1h"},
		}},
		Messages:    []anthropic.Message{{Role: "user", Content: string(payload)}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "report: narrative request")
	}
	resp.Usage.LogCost(model, "narrative")

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", eris.New("report: empty narrative response")
	}
	return text, nil
}
