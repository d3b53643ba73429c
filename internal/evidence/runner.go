package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultConcurrency is how many producers a Runner drives at once.
const DefaultConcurrency = 4

// RunHooks receive producer events.
type RunHooks struct {
	OnProduce func(producer string, duration float64, err error)
}

// Outcome is the result of running one producer.
type Outcome struct {
	Producer  string `json:"producer"`
	Category  string `json:"category"`
	Component string `json:"component,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Runner drives evidence producers and merges their results.
type Runner struct {
	producers   []Producer
	agg         *Aggregator
	logger      log.Logger
	hooks       RunHooks
	concurrency int
}

// NewRunner creates a Runner. concurrency <= 0 uses DefaultConcurrency.
func NewRunner(producers []Producer, agg *Aggregator, logger log.Logger, hooks RunHooks, concurrency int) *Runner {
	if logger == nil {
		logger = log.Nop()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		producers:   producers,
		agg:         agg,
		logger:      logger,
		hooks:       hooks,
		concurrency: concurrency,
	}
}

// RunAll runs every producer and merges each result. A failing producer or
// merge never stops the others; all failures are joined into the returned
// error and reported per producer in the outcomes.
func (r *Runner) RunAll(ctx context.Context) ([]Outcome, error) {
	outcomes := make([]Outcome, len(r.producers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range r.producers {
		g.Go(func() error {
			outcomes[i] = r.RunOne(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Producer, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

// RunOne produces and merges a single producer's evidence. The producer's
// network calls finish before the merge transaction starts.
func (r *Runner) RunOne(ctx context.Context, p Producer) Outcome {
	runID := ulid.Make().String()
	o := Outcome{Producer: p.Name(), Category: p.Category(), RunID: runID}
	L := r.logger.With("producer", p.Name(), "category", p.Category(), "run_id", runID)

	start := time.Now()
	res, err := p.Produce(ctx)
	if r.hooks.OnProduce != nil {
		r.hooks.OnProduce(p.Name(), time.Since(start).Seconds(), err)
	}
	if err != nil {
		L.Error(ctx, err, "evidence producer failed")
		return o.fail(err)
	}
	if res == nil {
		err := errors.New("producer returned no result")
		L.Error(ctx, err, "evidence producer failed")
		return o.fail(err)
	}

	if res.Component == "" {
		res.Component = p.Name()
	}
	if res.RunID == "" {
		res.RunID = runID
	}
	if res.ProducedAt.IsZero() {
		res.ProducedAt = time.Now().UTC()
	}
	o.Component = res.Component

	if err := r.agg.Merge(ctx, p.Category(), res); err != nil {
		return o.fail(err)
	}

	L.Info(ctx, "evidence collected", "component", res.Component, "duration", time.Since(start).Seconds())
	return o
}

func (o Outcome) fail(err error) Outcome {
	o.Err = err
	o.Error = err.Error()
	return o
}
