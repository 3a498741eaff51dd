// Package ai wraps the Anthropic API for prompt-based pipeline modules.
package ai

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Anthropic API operations used by ai_prompt modules.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single-turn completion request.
type CompletionRequest struct {
	Model     string
	MaxTokens int64
	System    string
	Prompt    string
}

// CompletionResponse carries the model output and token usage.
type CompletionResponse struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage tracks token consumption for run metering.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// sdkClient implements Client using the official anthropic-sdk-go, with a
// client-side rate limiter so batch sweeps stay under the API quota.
type sdkClient struct {
	client  sdk.Client
	limiter *rate.Limiter
}

// NewClient creates an Anthropic-backed client. requestsPerMinute <= 0
// disables client-side rate limiting.
func NewClient(apiKey string, requestsPerMinute int) Client {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return &sdkClient{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		limiter: limiter,
	}
}

func (c *sdkClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ai: rate limit wait")
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "ai: create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &CompletionResponse{
		Text: text,
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
