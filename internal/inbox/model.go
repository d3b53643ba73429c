package inbox

import (
	"context"
	"time"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

// Message is one incoming message.
type Message struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body,omitempty"`
	Labels     []string  `json:"labels,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Notice is what a Notifier delivers for a classified message.
type Notice struct {
	ID         string        `json:"id"`
	MessageID  string        `json:"message_id"`
	Subject    string        `json:"subject"`
	From       string        `json:"from"`
	Tier       deadline.Tier `json:"tier"`
	ReceivedAt time.Time     `json:"received_at"`
	Deadline   time.Time     `json:"deadline"`
	Display    string        `json:"display"`
	Text       string        `json:"text"`
}

// Notifier delivers notices. Implementations only need Notice.Text; the
// other fields are there for richer sinks.
type Notifier interface {
	Notify(ctx context.Context, n *Notice) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, n *Notice) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n *Notice) error { return f(ctx, n) }

// Classifier decides a message's urgency tier. ok is false when the
// message needs no response.
type Classifier interface {
	Classify(ctx context.Context, msg *Message) (tier deadline.Tier, ok bool, err error)
}
