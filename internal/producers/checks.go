package producers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

// Check types.
const (
	TypePrometheus = "prometheus"
	TypeLoki       = "loki"
)

// CheckDef is one entry of the checks file.
type CheckDef struct {
	Name     string            `yaml:"name"`
	Category string            `yaml:"category"`
	Type     string            `yaml:"type"`
	Counters map[string]string `yaml:"counters"`
	Window   time.Duration     `yaml:"window"`
	Step     time.Duration     `yaml:"step"`
	Limit    int               `yaml:"limit"`
}

type checksFile struct {
	Checks []CheckDef `yaml:"checks"`
}

// LoadChecks reads check definitions from a YAML file.
func LoadChecks(path string) ([]CheckDef, error) {
	b, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read checks: %w", err)
	}
	return ParseChecks(b)
}

// ParseChecks decodes check definitions. Unknown fields are rejected.
func ParseChecks(b []byte) ([]CheckDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var f checksFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse checks: %w", err)
	}
	return f.Checks, nil
}

// Validate checks a definition independent of backend configuration.
func (d CheckDef) Validate() error {
	if err := evidence.ValidateName(d.Name); err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	if err := evidence.ValidateName(d.Category); err != nil {
		return fmt.Errorf("check %q category: %w", d.Name, err)
	}
	if len(d.Counters) == 0 {
		return fmt.Errorf("check %q: at least one counter is required", d.Name)
	}
	for counter, q := range d.Counters {
		if counter == "" || q == "" {
			return fmt.Errorf("check %q: counters need a name and a query", d.Name)
		}
	}
	if d.Window < 0 || d.Step < 0 || d.Limit < 0 {
		return fmt.Errorf("check %q: window, step and limit must not be negative", d.Name)
	}
	switch d.Type {
	case TypePrometheus:
		if d.Step > 0 && d.Window == 0 {
			return fmt.Errorf("check %q: step requires a window", d.Name)
		}
	case TypeLoki:
		if d.Window > maxLokiWindow {
			return fmt.Errorf("check %q: loki window %s exceeds %s", d.Name, d.Window, maxLokiWindow)
		}
	default:
		return fmt.Errorf("check %q: unknown type %q", d.Name, d.Type)
	}
	return nil
}

// Backend locates a query API.
type Backend struct {
	Endpoint string
	TenantID string
}

// Factory turns check definitions into producers.
type Factory struct {
	Prometheus Backend
	Loki       Backend
	HTTPClient *http.Client
	Now        func() time.Time
}

// Build validates every definition and registers one producer per check.
func (f *Factory) Build(defs []CheckDef) (*Registry, error) {
	reg := NewRegistry()
	for _, d := range defs {
		p, err := f.New(d)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildFile loads the checks file at path and builds its producers.
func (f *Factory) BuildFile(path string) (*Registry, error) {
	defs, err := LoadChecks(path)
	if err != nil {
		return nil, err
	}
	return f.Build(defs)
}

// New builds one producer.
func (f *Factory) New(d CheckDef) (evidence.Producer, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	client := f.HTTPClient
	if client == nil {
		client = NewHTTPClient()
	}
	now := f.Now
	if now == nil {
		now = time.Now
	}

	switch d.Type {
	case TypePrometheus:
		if f.Prometheus.Endpoint == "" {
			return nil, fmt.Errorf("check %q: prometheus endpoint not configured", d.Name)
		}
		step := d.Step
		if d.Window > 0 && step == 0 {
			step = d.Window / 60
			if step < time.Second {
				step = time.Second
			}
		}
		return &PrometheusCheck{
			name:     d.Name,
			category: d.Category,
			counters: d.Counters,
			window:   d.Window,
			step:     step,
			backend:  &backend{endpoint: f.Prometheus.Endpoint, tenantID: f.Prometheus.TenantID, httpClient: client},
			now:      now,
		}, nil
	default: // TypeLoki, guaranteed by Validate
		if f.Loki.Endpoint == "" {
			return nil, fmt.Errorf("check %q: loki endpoint not configured", d.Name)
		}
		window := d.Window
		if window == 0 {
			window = defaultLokiWindow
		}
		limit := d.Limit
		if limit == 0 {
			limit = defaultLokiLimit
		}
		return &LokiCheck{
			name:     d.Name,
			category: d.Category,
			counters: d.Counters,
			window:   window,
			limit:    limit,
			backend:  &backend{endpoint: f.Loki.Endpoint, tenantID: f.Loki.TenantID, httpClient: client},
			now:      now,
		}, nil
	}
}
