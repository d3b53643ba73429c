package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/memstore"
)

type staticProducer struct {
	name, category string
	summary        map[string]float64
	err            error
}

func (p staticProducer) Name() string     { return p.name }
func (p staticProducer) Category() string { return p.category }
func (p staticProducer) Produce(context.Context) (*evidence.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &evidence.Result{Summary: p.summary}, nil
}

func collectFixture(t *testing.T) ([]*evidence.Summary, error) {
	t.Helper()
	ctx := context.Background()
	agg := evidence.NewAggregator(memstore.New(), log.Nop(), evidence.Hooks{}, 3)
	runner := evidence.NewRunner([]evidence.Producer{
		staticProducer{name: "s3_encryption", category: "KSI-SVC-VRI", summary: map[string]float64{"total": 4, "encrypted": 3}},
		staticProducer{name: "mfa", category: "KSI-IAM-MFA", summary: map[string]float64{"total": 10, "enrolled": 10}},
		staticProducer{name: "rds_encryption", category: "KSI-SVC-VRI", summary: map[string]float64{"total": 1, "encrypted": 1}},
		staticProducer{name: "broken", category: "KSI-CNA-RNT", err: errors.New("prometheus unreachable")},
	}, agg, log.Nop(), evidence.RunHooks{}, 2)

	outcomes, runErr := runner.RunAll(ctx)
	sums, err := summaries(ctx, agg, outcomes)
	require.NoError(t, err)
	return sums, runErr
}

func TestSummaries_TouchedCategoriesOnly(t *testing.T) {
	t.Parallel()

	sums, runErr := collectFixture(t)
	require.Error(t, runErr)

	// the failing check's category never got a document
	require.Len(t, sums, 2)
	require.Equal(t, "KSI-IAM-MFA", sums[0].Category)
	require.Equal(t, "KSI-SVC-VRI", sums[1].Category)
	require.Equal(t, 5.0, sums[1].Totals["total"])
	require.Equal(t, 2, sums[1].Components)
}

func TestPrintSummaries(t *testing.T) {
	t.Parallel()

	sums, _ := collectFixture(t)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printSummaries(&buf, formatText, sums))
		out := buf.String()
		require.Contains(t, out, "KSI-SVC-VRI")
		require.Contains(t, out, "2 components")
		require.Contains(t, out, "80.00%")
		require.Less(t, strings.Index(out, "KSI-IAM-MFA"), strings.Index(out, "KSI-SVC-VRI"))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printSummaries(&buf, formatJSON, sums))
		var decoded []evidence.Summary
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 2)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printSummaries(&buf, formatCSV, sums))
		r := csv.NewReader(&buf)
		r.FieldsPerRecord = 5
		rows, err := r.ReadAll()
		require.NoError(t, err)
		require.Contains(t, rows, []string{"KSI-SVC-VRI", "TOTAL", "encrypted", "4", ""})
	})
}

func TestSplitNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", "c"}, splitNames(" a, b ,c"))
	require.Empty(t, splitNames(" , "))
}
