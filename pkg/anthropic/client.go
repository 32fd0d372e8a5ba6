// Package anthropic wraps the official SDK behind a one-call client so the
// reporting layer can request narrative briefings without touching SDK types.
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client is the slice of the Anthropic API the report narrative needs.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest describes a single messages-API call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64 // nil leaves the model default
}

// SystemBlock is one block of the system prompt. A non-nil CacheControl
// marks a cache breakpoint after the block.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl picks the prompt cache lifetime for a block.
type CacheControl struct {
	TTL string // "5m" or "1h"; empty takes the API default
}

// Message is one conversational turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse carries the response fields the engine reads.
type MessageResponse struct {
	ID           string
	Model        string
	StopReason   string
	StopSequence string
	Content      []ContentBlock
	Usage        TokenUsage
}

// ContentBlock is one response content block; consumers keep only the
// "text" blocks.
type ContentBlock struct {
	Type string
	Text string
}

type sdkClient struct {
	api sdk.Client
}

// NewClient builds a Client backed by anthropic-sdk-go.
func NewClient(apiKey string) Client {
	return &sdkClient{api: sdk.NewClient(option.WithAPIKey(apiKey))}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		System:    sdkSystem(req.System),
		Messages:  sdkMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return responseFromSDK(msg), nil
}

// sdkMessages converts turns to SDK params. Roles other than "assistant"
// send as user turns.
func sdkMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content))
		} else {
			out[i] = sdk.NewUserMessage(sdk.NewTextBlock(m.Content))
		}
	}
	return out
}

// sdkSystem converts system blocks, returning nil for an empty prompt so
// the field stays off the wire.
func sdkSystem(blocks []SystemBlock) []sdk.TextBlockParam {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i].Text = b.Text
		if b.CacheControl == nil {
			continue
		}
		cc := sdk.NewCacheControlEphemeralParam()
		if ttl := b.CacheControl.TTL; ttl != "" {
			cc.TTL = sdk.CacheControlEphemeralTTL(ttl)
		}
		out[i].CacheControl = cc
	}
	return out
}

func responseFromSDK(msg *sdk.Message) *MessageResponse {
	out := &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Content:      make([]ContentBlock, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for i, b := range msg.Content {
		out.Content[i] = ContentBlock{Type: b.Type, Text: b.Text}
	}
	return out
}
