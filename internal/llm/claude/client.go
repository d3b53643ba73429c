// Package claude classifies inbox messages with the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
	"github.com/linnemanlabs/ksiwatch/internal/inbox"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	maxTokens    = 16
	maxBodyChars = 8000
	httpTimeout  = 60 * time.Second
)

const systemPrompt = `You triage messages sent to a cloud service provider's FedRAMP compliance inbox.
Decide how urgently the message needs a response:
- high: security incidents, emergency directives, actively exploited vulnerabilities
- moderate: requests that require corrective action or a formal reply
- low: routine program notices that still need acknowledgement
- none: anything that needs no response
Answer with exactly one word: high, moderate, low or none.`

// Client classifies messages with Claude. It implements inbox.Classifier.
type Client struct {
	sdk   anthropic.Client
	model string
}

// New creates a Claude classifier. Extra options are passed to the SDK
// client, e.g. option.WithBaseURL in tests.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(httpTimeout),
	}, opts...)
	return &Client{
		sdk:   anthropic.NewClient(all...),
		model: model,
	}
}

// Classify implements inbox.Classifier.
func (c *Client) Classify(ctx context.Context, msg *inbox.Message) (deadline.Tier, bool, error) {
	resp, err := c.sdk.Messages.New(ctx, c.buildParams(msg))
	if err != nil {
		return "", false, fmt.Errorf("claude: %w", err)
	}
	return parseVerdict(resp)
}

func (c *Client) buildParams(msg *inbox.Message) anthropic.MessageNewParams {
	body := msg.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "\n[truncated]"
	}
	prompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", msg.From, msg.Subject, body)

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

// parseVerdict reads the first word of the first text block.
func parseVerdict(resp *anthropic.Message) (deadline.Tier, bool, error) {
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		word := strings.ToLower(strings.Trim(firstWord(block.Text), ".,:;!\"'`*"))
		if word == "none" {
			return "", false, nil
		}
		tier, err := deadline.ParseTier(word)
		if err != nil {
			return "", false, fmt.Errorf("claude: unexpected verdict %q", block.Text)
		}
		return tier, true, nil
	}
	return "", false, errors.New("claude: response has no text content")
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
