package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ksiwatch/internal/evidence")

const (
	// DefaultMaxAttempts bounds the read-modify-write retries per merge.
	DefaultMaxAttempts = 5

	initialRetryInterval = 20 * time.Millisecond
	maxRetryInterval     = 500 * time.Millisecond
)

// Merge outcomes reported through Hooks.
const (
	OutcomeMerged    = "merged"
	OutcomeUnchanged = "unchanged"
	OutcomeConflict  = "conflict"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Hooks receive aggregator events, typically wired to Prometheus.
type Hooks struct {
	OnMerge    func(category, outcome string, duration float64)
	OnConflict func(category string)
	OnSummary  func(category string, warnings int)
}

// Aggregator merges producer results into category documents.
type Aggregator struct {
	store       Store
	logger      log.Logger
	hooks       Hooks
	maxAttempts int
}

// NewAggregator creates an Aggregator. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewAggregator(store Store, logger log.Logger, hooks Hooks, maxAttempts int) *Aggregator {
	if logger == nil {
		logger = log.Nop()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Aggregator{
		store:       store,
		logger:      logger,
		hooks:       hooks,
		maxAttempts: maxAttempts,
	}
}

// Merge folds result into the category document as one atomic
// read-modify-write. Only the entry for result.Component changes. Version
// conflicts are retried with backoff; the last MergeConflictError is
// returned when attempts run out.
func (a *Aggregator) Merge(ctx context.Context, category string, result *Result) (err error) {
	start := time.Now()
	component := ""
	if result != nil {
		component = result.Component
	}

	ctx, span := tracer.Start(ctx, "evidence.Merge", trace.WithAttributes(
		attribute.String("ksiwatch.category", category),
		attribute.String("ksiwatch.component", component),
	))
	defer span.End()

	L := a.logger.With("category", category, "component", component)

	outcome := OutcomeError
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if a.hooks.OnMerge != nil {
			a.hooks.OnMerge(category, outcome, time.Since(start).Seconds())
		}
	}()

	if err := ValidateName(category); err != nil {
		return err
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		return a.mergeOnce(ctx, category, component, result, attempt)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialRetryInterval
	b.MaxInterval = maxRetryInterval

	outcome, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(a.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			if a.hooks.OnConflict != nil {
				a.hooks.OnConflict(category)
			}
			L.Warn(ctx, "evidence merge conflict, retrying", "attempt", attempt, "retry_in", next.String(), "error", err.Error())
		}),
	)

	var mre *MalformedResultError
	var mce *MergeConflictError
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int("ksiwatch.attempts", attempt))
		L.Info(ctx, "evidence merged", "outcome", outcome, "attempts", attempt)
		return nil
	case errors.As(err, &mre):
		outcome = OutcomeMalformed
	case errors.As(err, &mce):
		outcome = OutcomeConflict
	default:
		outcome = OutcomeError
	}
	L.Error(ctx, err, "evidence merge failed", "outcome", outcome, "attempts", attempt)
	return err
}

// mergeOnce is a single transaction attempt. Only version conflicts are
// returned as retryable errors.
func (a *Aggregator) mergeOnce(ctx context.Context, category, component string, result *Result, attempt int) (string, error) {
	doc, version, err := a.store.Load(ctx, category)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("load %s: %w", category, err))
	}
	if doc == nil {
		doc = NewDocument(category)
	}

	next, err := MergeComponent(doc, component, result)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if bytes.Equal(next, doc) && version > 0 {
		return OutcomeUnchanged, nil
	}

	next, err = setVersion(next, version+1)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("stamp version: %w", err))
	}

	if err := a.store.Save(ctx, category, version, next); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return "", &MergeConflictError{Category: category, Component: component, Attempts: attempt, Err: err}
		}
		return "", backoff.Permanent(fmt.Errorf("save %s: %w", category, err))
	}
	return OutcomeMerged, nil
}

// Document returns the raw category document.
func (a *Aggregator) Document(ctx context.Context, category string) ([]byte, bool, error) {
	if err := ValidateName(category); err != nil {
		return nil, false, err
	}
	doc, _, err := a.store.Load(ctx, category)
	if err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, nil
	}
	return doc, true, nil
}

// Summary computes the category summary and logs one warning per skipped
// component.
func (a *Aggregator) Summary(ctx context.Context, category string) (*Summary, bool, error) {
	doc, ok, err := a.Document(ctx, category)
	if err != nil || !ok {
		return nil, ok, err
	}

	s := ComputeSummary(doc)
	for _, w := range s.Warnings {
		a.logger.Warn(ctx, "evidence component skipped in summary",
			"category", category,
			"component", w.Component,
			"reason", w.Reason,
		)
	}
	if a.hooks.OnSummary != nil {
		a.hooks.OnSummary(category, len(s.Warnings))
	}
	return &s, true, nil
}

// Categories lists every stored category.
func (a *Aggregator) Categories(ctx context.Context) ([]string, error) {
	return a.store.Categories(ctx)
}
