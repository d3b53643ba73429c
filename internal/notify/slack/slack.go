// Package slack delivers deadline notices to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
	"github.com/linnemanlabs/ksiwatch/internal/inbox"
)

const (
	maxSubjectLen = 150 // header blocks cap plain_text at 150 chars
	httpTimeout   = 10 * time.Second
)

// DefaultRate is the webhook posting rate Slack tolerates per channel.
var DefaultRate = rate.Every(time.Second)

// Notifier posts notices to a Slack webhook. It implements inbox.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify only logs
// the notice.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		limiter:    rate.NewLimiter(DefaultRate, 1),
		logger:     logger,
	}
}

// Notify posts a notice to the configured webhook, waiting for the rate
// limiter first.
func (n *Notifier) Notify(ctx context.Context, notice *inbox.Notice) error {
	if n.webhookURL == "" {
		n.logger.Info(ctx, "slack webhook not configured, notice not posted",
			"notice_id", notice.ID,
			"message_id", notice.MessageID,
			"text", notice.Text,
		)
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack: rate limit wait: %w", err)
	}

	body, err := json.Marshal(buildMessage(notice))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// buildMessage keeps the plain text field as the fallback for clients that
// do not render blocks.
func buildMessage(n *inbox.Notice) map[string]any {
	return map[string]any{
		"text": n.Text,
		"blocks": []map[string]any{
			headerBlock(n),
			fieldsBlock(n),
			{"type": "divider"},
			contextBlock(n),
		},
	}
}

func headerBlock(n *inbox.Notice) map[string]any {
	text := fmt.Sprintf("%s %s response due", tierEmoji(n.Tier), strings.ToUpper(string(n.Tier)))
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(n *inbox.Notice) map[string]any {
	from := n.From
	if from == "" {
		from = "_unknown_"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*%s*", escape(truncate(n.Subject, maxSubjectLen))),
		},
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Due:* %s", n.Display)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Tier:* %s", n.Tier)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*From:* %s", escape(from))},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Received:* %s", n.ReceivedAt.UTC().Format("2006-01-02 15:04 UTC"))},
		},
	}
}

func contextBlock(n *inbox.Notice) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("ksiwatch • notice %s • message %s", n.ID, escape(n.MessageID)),
			},
		},
	}
}

func tierEmoji(t deadline.Tier) string {
	switch t {
	case deadline.TierHigh:
		return "\U0001f534" // red circle
	case deadline.TierModerate:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// escape neutralizes Slack mrkdwn control characters.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return escaper.Replace(s) }

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
