package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messagesHandler serves a canned messages-API response and, when captured
// is non-nil, decodes the request body into it for wire assertions.
func messagesHandler(status int, body map[string]any, captured *map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			json.NewDecoder(r.Body).Decode(captured) //nolint:errcheck
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	})
}

func newTestClient(t *testing.T, h http.Handler) *sdkClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &sdkClient{api: sdk.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(ts.URL),
		option.WithMaxRetries(0),
	)}
}

func minimalMessage(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": "ok"}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
	}
}

func TestCreateMessage_Briefing(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, messagesHandler(http.StatusOK, map[string]any{
		"id":   "msg_brief_01",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": "Lead quality held at 7.1; Web remains the strongest source."},
		},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  812,
			"output_tokens": 64,
		},
	}, &got))

	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: `{"date":"2026-08-10"}`}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_brief_01", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Contains(t, resp.Content[0].Text, "Web remains the strongest")
	assert.Equal(t, int64(812), resp.Usage.InputTokens)
	assert.Equal(t, int64(64), resp.Usage.OutputTokens)

	assert.Equal(t, "claude-haiku-4-5-20251001", got["model"])
	assert.Equal(t, float64(1024), got["max_tokens"])
	_, hasSystem := got["system"]
	assert.False(t, hasSystem, "empty system prompt should stay off the wire")
}

func TestCreateMessage_SendsSystemAndTemperature(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, messagesHandler(http.StatusOK, minimalMessage("msg_sys"), &got))

	temp := 0.2
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		System: []SystemBlock{{
			Text:         "You are an operations analyst.",
			CacheControl: &CacheControl{TTL: "1h"},
		}},
		Messages:    []Message{{Role: "user", Content: "brief me"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.2, got["temperature"])
	system, ok := got["system"].([]any)
	require.True(t, ok, "system should be a block array")
	require.Len(t, system, 1)
	block, ok := system[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "You are an operations analyst.", block["text"])
	cache, ok := block["cache_control"].(map[string]any)
	require.True(t, ok, "cache breakpoint should reach the wire")
	assert.Equal(t, "ephemeral", cache["type"])
	assert.Equal(t, "1h", cache["ttl"])
}

func TestCreateMessage_APIError(t *testing.T) {
	client := newTestClient(t, messagesHandler(http.StatusServiceUnavailable, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
	}, nil))

	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "brief me"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}
