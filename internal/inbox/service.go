package inbox

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

// Scan outcomes reported through Hooks.
const (
	OutcomeNotified     = "notified"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeUnclassified = "unclassified"
	OutcomeError        = "error"
)

// Config holds scanner settings.
type Config struct {
	// Labels restricts scanning to messages carrying one of these labels.
	// Empty scans everything.
	Labels string
	// ImpactLevel is the tier used when no keyword matches. Empty leaves
	// such messages unclassified.
	ImpactLevel string
	SeenTTL     time.Duration
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Labels, "inbox-labels", "", "comma separated message labels to scan (empty scans all)")
	fs.StringVar(&c.ImpactLevel, "inbox-impact-level", "", "tier for messages no keyword matches (high|moderate|low, empty ignores them)")
	fs.DurationVar(&c.SeenTTL, "inbox-seen-ttl", DefaultSeenTTL, "how long handled message ids are remembered")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.ImpactLevel != "" {
		if _, err := deadline.ParseTier(c.ImpactLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid INBOX_IMPACT_LEVEL: %w", err))
		}
	}
	if c.SeenTTL < 0 {
		errs = append(errs, fmt.Errorf("INBOX_SEEN_TTL must not be negative, got %s", c.SeenTTL))
	}
	return errors.Join(errs...)
}

func (c *Config) labelSet() map[string]struct{} {
	out := map[string]struct{}{}
	for _, l := range strings.Split(c.Labels, ",") {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			out[l] = struct{}{}
		}
	}
	return out
}

// Hooks receive scan events, typically wired to Prometheus.
type Hooks struct {
	OnScan func(outcome string, tier deadline.Tier)
}

// ScanResult is the outcome of scanning one message.
type ScanResult struct {
	Outcome string  `json:"outcome"`
	Notice  *Notice `json:"notice,omitempty"`
}

// Service is the business boundary for inbox scanning.
type Service struct {
	classifier Classifier
	engine     *deadline.Engine
	notifier   Notifier
	labels     map[string]struct{}
	seen       *seenSet
	logger     log.Logger
	hooks      Hooks
}

// NewService creates a scanner. cfg must already be validated.
func NewService(cfg Config, classifier Classifier, engine *deadline.Engine, notifier Notifier, logger log.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if engine == nil {
		engine = deadline.Default()
	}
	if classifier == nil {
		classifier = NewKeywordClassifier(nil)
	}
	if cfg.ImpactLevel != "" {
		if tier, err := deadline.ParseTier(cfg.ImpactLevel); err == nil {
			classifier = Chain{classifier, Fixed(tier)}
		}
	}
	return &Service{
		classifier: classifier,
		engine:     engine,
		notifier:   notifier,
		labels:     cfg.labelSet(),
		seen:       newSeenSet(cfg.SeenTTL, time.Now),
		logger:     logger,
		hooks:      hooks,
	}
}

// Scan handles one message. A message ID is only processed once; if
// classification, deadline computation or delivery fails the ID is
// released so a later scan can retry it.
func (s *Service) Scan(ctx context.Context, msg *Message) (*ScanResult, error) {
	if msg == nil || msg.ID == "" {
		return nil, errors.New("message id is required")
	}
	if msg.ReceivedAt.IsZero() {
		return nil, fmt.Errorf("message %s: received_at is required", msg.ID)
	}

	L := s.logger.With("message_id", msg.ID)

	if !s.matchesLabels(msg) {
		return s.done(OutcomeIgnored, "", nil), nil
	}
	if !s.seen.claim(msg.ID) {
		return s.done(OutcomeDuplicate, "", nil), nil
	}

	tier, ok, err := s.classifier.Classify(ctx, msg)
	if err != nil {
		s.seen.release(msg.ID)
		L.Error(ctx, err, "message classification failed", "tier", "unknown")
		s.done(OutcomeError, "", nil)
		return nil, fmt.Errorf("classify %s: %w", msg.ID, err)
	}
	if !ok {
		return s.done(OutcomeUnclassified, "", nil), nil
	}

	L = L.With("tier", string(tier))

	d, err := s.engine.Compute(msg.ReceivedAt, tier)
	if err != nil {
		s.seen.release(msg.ID)
		L.Error(ctx, err, "deadline computation failed")
		s.done(OutcomeError, tier, nil)
		return nil, fmt.Errorf("deadline for %s: %w", msg.ID, err)
	}

	n := s.buildNotice(msg, tier, d)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.seen.release(msg.ID)
			L.Error(ctx, err, "notice delivery failed", "notice_id", n.ID)
			s.done(OutcomeError, tier, nil)
			return nil, fmt.Errorf("notify %s: %w", msg.ID, err)
		}
	}

	L.Info(ctx, "deadline notice sent",
		"notice_id", n.ID,
		"deadline", n.Deadline.Format(time.RFC3339),
		"subject", msg.Subject,
	)
	return s.done(OutcomeNotified, tier, n), nil
}

func (s *Service) done(outcome string, tier deadline.Tier, n *Notice) *ScanResult {
	if s.hooks.OnScan != nil {
		s.hooks.OnScan(outcome, tier)
	}
	return &ScanResult{Outcome: outcome, Notice: n}
}

func (s *Service) matchesLabels(msg *Message) bool {
	if len(s.labels) == 0 {
		return true
	}
	for _, l := range msg.Labels {
		if _, ok := s.labels[strings.ToLower(strings.TrimSpace(l))]; ok {
			return true
		}
	}
	return false
}

func (s *Service) buildNotice(msg *Message, tier deadline.Tier, d deadline.Deadline) *Notice {
	display := s.engine.Format(d)
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	return &Notice{
		ID:         ulid.Make().String(),
		MessageID:  msg.ID,
		Subject:    subject,
		From:       msg.From,
		Tier:       tier,
		ReceivedAt: msg.ReceivedAt.UTC(),
		Deadline:   d.Instant,
		Display:    display,
		Text: fmt.Sprintf("[%s] FedRAMP message from %s: %q. Response due %s.",
			strings.ToUpper(string(tier)), orUnknown(msg.From), subject, display),
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown sender"
	}
	return s
}
