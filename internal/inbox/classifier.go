package inbox

import (
	"context"
	"strings"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

// DefaultKeywords are matched case-insensitively against subject and body.
var DefaultKeywords = map[deadline.Tier][]string{
	deadline.TierHigh: {
		"emergency directive",
		"critical vulnerability",
		"incident report required",
		"within 12 hours",
		"high impact",
	},
	deadline.TierModerate: {
		"action required",
		"corrective action",
		"significant change",
		"moderate impact",
	},
	deadline.TierLow: {
		"fedramp",
		"request for information",
		"low impact",
	},
}

// tierOrder is the precedence used when several tiers match.
var tierOrder = []deadline.Tier{deadline.TierHigh, deadline.TierModerate, deadline.TierLow}

// KeywordClassifier assigns the most urgent tier whose keywords appear in
// the message.
type KeywordClassifier struct {
	keywords map[deadline.Tier][]string
}

// NewKeywordClassifier builds a classifier from tier keyword lists. A nil
// map uses DefaultKeywords.
func NewKeywordClassifier(keywords map[deadline.Tier][]string) *KeywordClassifier {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	norm := make(map[deadline.Tier][]string, len(keywords))
	for tier, words := range keywords {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				norm[tier] = append(norm[tier], w)
			}
		}
	}
	return &KeywordClassifier{keywords: norm}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, msg *Message) (deadline.Tier, bool, error) {
	text := strings.ToLower(msg.Subject + "\n" + msg.Body)
	for _, tier := range tierOrder {
		for _, w := range k.keywords[tier] {
			if strings.Contains(text, w) {
				return tier, true, nil
			}
		}
	}
	return "", false, nil
}

// Chain tries classifiers in order and returns the first match. An error
// from one classifier is returned only if no later classifier matches.
type Chain []Classifier

// Classify implements Classifier.
func (c Chain) Classify(ctx context.Context, msg *Message) (deadline.Tier, bool, error) {
	var firstErr error
	for _, cl := range c {
		tier, ok, err := cl.Classify(ctx, msg)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return tier, true, nil
		}
	}
	return "", false, firstErr
}

// Fixed classifies every message as the same tier, typically the system's
// FedRAMP impact level.
type Fixed deadline.Tier

// Classify implements Classifier.
func (f Fixed) Classify(context.Context, *Message) (deadline.Tier, bool, error) {
	return deadline.Tier(f), true, nil
}
