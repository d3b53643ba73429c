// collect runs every configured evidence check once, merges the results
// into the rollup store and prints the touched categories' summaries. It
// exits non-zero when any check or merge failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"unicode"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	kc "github.com/linnemanlabs/ksiwatch/internal/cfg"
	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/producers"
)

const appName = "ksiwatch"
const component = "collect"

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatCSV  = "csv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "collect failed:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		storeCfg   kc.StoreConfig
		sourcesCfg kc.SourcesConfig
		logCfg     log.Config
		only       string
		format     string
	)
	storeCfg.RegisterFlags(flag.CommandLine)
	sourcesCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&only, "only", "", "comma separated check names to run (empty = all)")
	flag.StringVar(&format, "format", formatText, "summary output format (text|json|csv)")
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "KSIWATCH_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	var errs []error
	if sourcesCfg.ChecksFile == "" {
		errs = append(errs, errors.New("CHECKS_FILE is required"))
	}
	switch format {
	case formatText, formatJSON, formatCSV:
	default:
		errs = append(errs, fmt.Errorf("invalid format %q (must be text, json or csv)", format))
	}
	if err := errors.Join(append(errs, storeCfg.Validate(), sourcesCfg.Validate(), logCfg.Validate())...); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	f := &producers.Factory{
		Prometheus: producers.Backend{Endpoint: sourcesCfg.PrometheusEndpoint, TenantID: sourcesCfg.PrometheusTenantID},
		Loki:       producers.Backend{Endpoint: sourcesCfg.LokiEndpoint, TenantID: sourcesCfg.LokiTenantID},
	}
	reg, err := f.BuildFile(sourcesCfg.ChecksFile)
	if err != nil {
		return fmt.Errorf("checks: %w", err)
	}
	selected := reg.All()
	if only != "" {
		if selected, err = reg.Select(splitNames(only)...); err != nil {
			return err
		}
	}

	store, closeStore, err := storeCfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	agg := evidence.NewAggregator(store, L, evidence.Hooks{}, storeCfg.MergeMaxAttempts)
	runner := evidence.NewRunner(selected, agg, L, evidence.RunHooks{}, sourcesCfg.Concurrency)

	L.Info(ctx, "collecting evidence", "checks", len(selected), "store", storeCfg.Backend)
	outcomes, runErr := runner.RunAll(ctx)

	sums, err := summaries(ctx, agg, outcomes)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := printSummaries(os.Stdout, format, sums); err != nil {
		return errors.Join(runErr, err)
	}

	if runErr != nil {
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		return fmt.Errorf("%d of %d checks failed: %w", failed, len(outcomes), runErr)
	}
	return nil
}

// summaries loads the summary of every category an outcome touched, in
// name order.
func summaries(ctx context.Context, agg *evidence.Aggregator, outcomes []evidence.Outcome) ([]*evidence.Summary, error) {
	seen := map[string]struct{}{}
	var cats []string
	for _, o := range outcomes {
		if _, ok := seen[o.Category]; ok || o.Category == "" {
			continue
		}
		seen[o.Category] = struct{}{}
		cats = append(cats, o.Category)
	}
	sort.Strings(cats)

	out := make([]*evidence.Summary, 0, len(cats))
	for _, c := range cats {
		s, ok, err := agg.Summary(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", c, err)
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func printSummaries(w io.Writer, format string, sums []*evidence.Summary) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	case formatCSV:
		for _, s := range sums {
			if err := evidence.RenderCSV(w, *s); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range sums {
		title := s.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\tversion %d\t%d components\n", s.Category, title, s.Version, s.Components)
		for _, k := range sortedKeys(s.Totals) {
			fmt.Fprintf(tw, "  %s\t%g\t\t\n", k, s.Totals[k])
		}
		for _, k := range sortedKeys(s.Ratios) {
			fmt.Fprintf(tw, "  %s\t%.2f%%\t\t\n", k, s.Ratios[k]*100)
		}
		for _, warn := range s.Warnings {
			fmt.Fprintf(tw, "  skipped %s\t%s\t\t\n", warn.Component, warn.Reason)
		}
	}
	return tw.Flush()
}

func splitNames(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
