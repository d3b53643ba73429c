package evidence

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/ksiwatch/internal/ksi"
)

// totalCounter is the denominator used for Ratios.
const totalCounter = "total"

// ComputeSummary walks every component of doc and sums their counters.
// It never fails: a component with a missing or malformed summary is
// skipped and recorded in Warnings.
func ComputeSummary(doc []byte) Summary {
	s := Summary{
		Category:     DocumentCategory(doc),
		Version:      DocumentVersion(doc),
		Totals:       make(map[string]float64),
		PerComponent: make(map[string]map[string]float64),
	}
	s.Title = ksi.Title(s.Category)

	if len(doc) > 0 && !gjson.ValidBytes(doc) {
		s.Warnings = append(s.Warnings, Warning{Component: "*", Reason: "document is not valid JSON"})
		return s
	}

	gjson.GetBytes(doc, componentsKey).ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		s.Components++

		counters, reason := componentCounters(v)
		if reason != "" {
			s.Warnings = append(s.Warnings, Warning{Component: name, Reason: reason})
			return true
		}

		s.PerComponent[name] = counters
		for c, n := range counters {
			s.Totals[c] += n
		}
		return true
	})

	s.Ratios = ratios(s.Totals)
	return s
}

func componentCounters(entry gjson.Result) (map[string]float64, string) {
	if !entry.IsObject() {
		return nil, "entry is not an object"
	}
	sum := entry.Get("summary")
	if !sum.Exists() || sum.Type == gjson.Null {
		return nil, "summary counters missing"
	}
	if !sum.IsObject() {
		return nil, "summary counters are not an object"
	}

	counters := make(map[string]float64)
	reason := ""
	sum.ForEach(func(k, v gjson.Result) bool {
		if v.Type != gjson.Number {
			reason = fmt.Sprintf("counter %q is not a number", k.String())
			return false
		}
		counters[k.String()] = v.Float()
		return true
	})
	if reason != "" {
		return nil, reason
	}
	return counters, ""
}

// ratios derives "<counter>/total" for every counter when a total exists.
func ratios(totals map[string]float64) map[string]float64 {
	total, ok := totals[totalCounter]
	if !ok || total == 0 {
		return nil
	}
	out := make(map[string]float64, len(totals)-1)
	for c, n := range totals {
		if c == totalCounter {
			continue
		}
		out[c+"/"+totalCounter] = n / total
	}
	return out
}

// ComponentNames returns the summarized component names in sorted order.
func (s Summary) ComponentNames() []string {
	names := make([]string, 0, len(s.PerComponent))
	for n := range s.PerComponent {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
