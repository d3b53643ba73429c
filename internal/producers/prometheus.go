package producers

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

// maxPayloadSeries caps the raw series kept per counter in the payload.
const maxPayloadSeries = 50

// PrometheusCheck evaluates one PromQL expression per summary counter.
//
// Without a window each expression is an instant query and the counter is
// the sum of the returned samples. With a window it is a range query over
// the trailing window and the counter is the sum of each series' peak.
type PrometheusCheck struct {
	name     string
	category string
	counters map[string]string
	window   time.Duration
	step     time.Duration
	backend  *backend
	now      func() time.Time
}

// Name implements evidence.Producer.
func (p *PrometheusCheck) Name() string { return p.name }

// Category implements evidence.Producer.
func (p *PrometheusCheck) Category() string { return p.category }

// Produce runs every counter query. Any failed query fails the whole check
// so a partial summary is never merged.
func (p *PrometheusCheck) Produce(ctx context.Context) (*evidence.Result, error) {
	now := p.now().UTC()
	res := &evidence.Result{
		Component:  p.name,
		Summary:    make(map[string]float64, len(p.counters)),
		Payload:    make(map[string]any, len(p.counters)+2),
		ProducedAt: now,
	}
	res.Payload["source"] = "prometheus"
	if p.window > 0 {
		res.Payload["window"] = p.window.String()
	}

	for _, counter := range sortedKeys(p.counters) {
		query := p.counters[counter]
		var (
			data gjson.Result
			err  error
		)
		if p.window > 0 {
			data, err = p.backend.get(ctx, "/api/v1/query_range", url.Values{
				"query": {query},
				"start": {now.Add(-p.window).Format(time.RFC3339)},
				"end":   {now.Format(time.RFC3339)},
				"step":  {p.step.String()},
			})
		} else {
			data, err = p.backend.get(ctx, "/api/v1/query", url.Values{
				"query": {query},
				"time":  {now.Format(time.RFC3339)},
			})
		}
		if err != nil {
			return nil, fmt.Errorf("counter %q: %w", counter, err)
		}

		value, err := promValue(data)
		if err != nil {
			return nil, fmt.Errorf("counter %q: %w", counter, err)
		}
		res.Summary[counter] = value
		res.Payload[counter] = promPayload(query, data)
	}
	return res, nil
}

// promValue reduces a query result to one number.
func promValue(data gjson.Result) (float64, error) {
	result := data.Get("result")
	switch rt := data.Get("resultType").String(); rt {
	case "scalar":
		return sampleValue(result.Get("1"))
	case "vector":
		var sum float64
		for _, s := range result.Array() {
			v, err := sampleValue(s.Get("value.1"))
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case "matrix":
		var sum float64
		for _, s := range result.Array() {
			peak := math.Inf(-1)
			for _, pt := range s.Get("values").Array() {
				v, err := sampleValue(pt.Get("1"))
				if err != nil {
					return 0, err
				}
				peak = math.Max(peak, v)
			}
			if !math.IsInf(peak, -1) {
				sum += peak
			}
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("unsupported result type %q", rt)
	}
}

// sampleValue parses a Prometheus sample value. NaN and infinities are
// rejected since they cannot be stored as summary counters.
func sampleValue(v gjson.Result) (float64, error) {
	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("sample value %q: %w", v.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("sample value %q is not finite", v.String())
	}
	return f, nil
}

func promPayload(query string, data gjson.Result) map[string]any {
	series := data.Get("result").Array()
	out := map[string]any{
		"query":        query,
		"result_type":  data.Get("resultType").String(),
		"series_count": len(series),
		"truncated":    len(series) > maxPayloadSeries,
	}
	if data.Get("resultType").String() == "scalar" {
		out["results"] = data.Get("result").Value()
		out["series_count"] = 1
		out["truncated"] = false
		return out
	}
	if len(series) > maxPayloadSeries {
		series = series[:maxPayloadSeries]
	}
	kept := make([]any, 0, len(series))
	for _, s := range series {
		kept = append(kept, s.Value())
	}
	out["results"] = kept
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
