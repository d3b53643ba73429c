package producers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

const (
	defaultLokiWindow = time.Hour
	maxLokiWindow     = 6 * time.Hour
	defaultLokiLimit  = 500
	sampleLines       = 5
)

// LokiCheck counts log lines matching one LogQL expression per summary
// counter over a trailing window. Counts are capped at the query limit and
// the payload marks when the cap was hit.
type LokiCheck struct {
	name     string
	category string
	counters map[string]string
	window   time.Duration
	limit    int
	backend  *backend
	now      func() time.Time
}

type logLine struct {
	Timestamp string            `json:"ts"`
	Line      string            `json:"line"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Name implements evidence.Producer.
func (l *LokiCheck) Name() string { return l.name }

// Category implements evidence.Producer.
func (l *LokiCheck) Category() string { return l.category }

// Produce runs every counter query.
func (l *LokiCheck) Produce(ctx context.Context) (*evidence.Result, error) {
	end := l.now().UTC()
	start := end.Add(-l.window)

	res := &evidence.Result{
		Component:  l.name,
		Summary:    make(map[string]float64, len(l.counters)),
		Payload:    map[string]any{"source": "loki", "window": l.window.String()},
		ProducedAt: end,
	}

	for _, counter := range sortedKeys(l.counters) {
		query := l.counters[counter]
		data, err := l.backend.get(ctx, "/loki/api/v1/query_range", url.Values{
			"query":     {query},
			"start":     {start.Format(time.RFC3339Nano)},
			"end":       {end.Format(time.RFC3339Nano)},
			"limit":     {strconv.Itoa(l.limit)},
			"direction": {"backward"},
		})
		if err != nil {
			return nil, fmt.Errorf("counter %q: %w", counter, err)
		}
		if rt := data.Get("resultType").String(); rt != "streams" {
			return nil, fmt.Errorf("counter %q: unsupported result type %q", counter, rt)
		}

		count, sample := flattenStreams(data.Get("result").Array(), sampleLines)
		res.Summary[counter] = float64(count)
		res.Payload[counter] = map[string]any{
			"query":        query,
			"stream_count": len(data.Get("result").Array()),
			"line_count":   count,
			"truncated":    count >= l.limit,
			"sample":       sample,
		}
	}
	return res, nil
}

// flattenStreams counts every entry and keeps the first n as samples. Stream
// labels are attached to the first sampled line of each stream only.
func flattenStreams(streams []gjson.Result, n int) (int, []logLine) {
	count := 0
	sample := make([]logLine, 0, n)
	for _, stream := range streams {
		labelsAdded := false
		for _, entry := range stream.Get("values").Array() {
			pair := entry.Array()
			if len(pair) < 2 {
				continue
			}
			count++
			if len(sample) >= n {
				continue
			}
			ll := logLine{Timestamp: pair[0].String(), Line: pair[1].String()}
			if !labelsAdded {
				labels := map[string]string{}
				stream.Get("stream").ForEach(func(k, v gjson.Result) bool {
					labels[k.String()] = v.String()
					return true
				})
				ll.Labels = labels
				labelsAdded = true
			}
			sample = append(sample, ll)
		}
	}
	return count, sample
}
