package evidence

import (
	"context"
	"time"
)

// Result is one evidence producer's output for a single run.
type Result struct {
	Component  string             `json:"component"`
	RunID      string             `json:"run_id,omitempty"`
	Payload    map[string]any     `json:"payload"`
	Summary    map[string]float64 `json:"summary"`
	ProducedAt time.Time          `json:"produced_at"`
}

// Producer gathers one configuration fact and reports it as a Result.
// Producers do all their network I/O inside Produce, before any merge.
type Producer interface {
	Name() string
	Category() string
	Produce(ctx context.Context) (*Result, error)
}

// Warning records a component that was skipped while summarizing.
type Warning struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

// Summary is the aggregate view of one category rollup.
type Summary struct {
	Category     string                        `json:"category"`
	Title        string                        `json:"title,omitempty"`
	Version      int64                         `json:"version"`
	Components   int                           `json:"components"`
	Totals       map[string]float64            `json:"totals"`
	Ratios       map[string]float64            `json:"ratios,omitempty"`
	PerComponent map[string]map[string]float64 `json:"per_component"`
	Warnings     []Warning                     `json:"warnings,omitempty"`
}
