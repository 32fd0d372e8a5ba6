package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDKMessages_RoleMapping(t *testing.T) {
	out := sdkMessages([]Message{
		{Role: "user", Content: "Summarize today's lead quality."},
		{Role: "assistant", Content: "Quality held steady at 7.2."},
		{Role: "reviewer", Content: "Anything else?"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	// Unrecognized roles send as user.
	assert.Equal(t, "user", string(out[2].Role))
}

func TestSDKMessages_Empty(t *testing.T) {
	assert.Empty(t, sdkMessages(nil))
}

func TestSDKSystem_NilWithoutBlocks(t *testing.T) {
	assert.Nil(t, sdkSystem(nil))
	assert.Nil(t, sdkSystem([]SystemBlock{}))
}

func TestSDKSystem_CacheBreakpoint(t *testing.T) {
	out := sdkSystem([]SystemBlock{
		{Text: "You are an operations analyst."},
		{Text: "Write a short briefing.", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "You are an operations analyst.", out[0].Text)
	assert.Empty(t, out[0].CacheControl.TTL)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), out[1].CacheControl.TTL)
}

func TestSDKSystem_DefaultTTL(t *testing.T) {
	out := sdkSystem([]SystemBlock{
		{Text: "Briefing rules.", CacheControl: &CacheControl{}},
	})
	require.Len(t, out, 1)
	assert.Empty(t, out[0].CacheControl.TTL)
}

func TestResponseFromSDK(t *testing.T) {
	resp := responseFromSDK(&sdk.Message{
		ID:           "msg_brief_01",
		Model:        "claude-haiku-4-5-20251001",
		StopReason:   "end_turn",
		StopSequence: "",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Volume rose 12% while quality slipped."},
			{Type: "text", Text: "Watch the paid-social source."},
		},
		Usage: sdk.Usage{
			InputTokens:              840,
			OutputTokens:             96,
			CacheCreationInputTokens: 1200,
			CacheReadInputTokens:     400,
		},
	})

	assert.Equal(t, "msg_brief_01", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "Watch the paid-social source.", resp.Content[1].Text)
	assert.Equal(t, int64(840), resp.Usage.InputTokens)
	assert.Equal(t, int64(96), resp.Usage.OutputTokens)
	assert.Equal(t, int64(1200), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(400), resp.Usage.CacheReadInputTokens)
}

func TestResponseFromSDK_NoContent(t *testing.T) {
	resp := responseFromSDK(&sdk.Message{ID: "msg_cut", StopReason: "max_tokens"})
	assert.Empty(t, resp.Content)
	assert.Equal(t, "max_tokens", resp.StopReason)
	assert.Zero(t, resp.Usage.InputTokens)
}

func TestNewClient_ReturnsClient(t *testing.T) {
	require.NotNil(t, NewClient("test-key"))
}
