// Package api exposes the evidence rollups, the deadline engine and the
// inbox scanner over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/inbox"
)

// maxBodyBytes caps request bodies read by the handlers.
const maxBodyBytes = 1 << 20

// EvidenceService defines the rollup operations the API needs.
type EvidenceService interface {
	Merge(ctx context.Context, category string, result *evidence.Result) error
	Document(ctx context.Context, category string) ([]byte, bool, error)
	Summary(ctx context.Context, category string) (*evidence.Summary, bool, error)
	Categories(ctx context.Context) ([]string, error)
}

// InboxService scans one incoming message.
type InboxService interface {
	Scan(ctx context.Context, msg *inbox.Message) (*inbox.ScanResult, error)
}

// Hooks receive API events, typically wired to Prometheus.
type Hooks struct {
	OnDeadline func(tier deadline.Tier)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	evidence EvidenceService
	engine   *deadline.Engine
	inbox    InboxService
	hooks    Hooks
}

// New creates a new API handler. A nil engine falls back to
// deadline.Default.
func New(logger log.Logger, ev EvidenceService, engine *deadline.Engine, ib InboxService, hooks Hooks) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if ev == nil {
		panic(xerrors.New("evidence service is required"))
	}
	if ib == nil {
		panic(xerrors.New("inbox service is required"))
	}
	if engine == nil {
		engine = deadline.Default()
	}
	return &API{
		logger:   logger,
		evidence: ev,
		engine:   engine,
		inbox:    ib,
		hooks:    hooks,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/evidence", a.handleListCategories)
		r.Get("/evidence/{category}", a.handleGetDocument)
		r.Get("/evidence/{category}/summary", a.handleGetSummary)
		r.Put("/evidence/{category}/components/{component}", a.handleMergeComponent)
		r.Post("/deadlines", a.handleComputeDeadline)
		r.Post("/inbox/messages", a.handleScanMessage)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return false
	}
	return true
}
