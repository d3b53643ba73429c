package api

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

type deadlineRequest struct {
	ReceivedAt time.Time `json:"received_at"`
	Tier       string    `json:"tier"`
}

type deadlineResponse struct {
	Tier       deadline.Tier `json:"tier"`
	ReceivedAt time.Time     `json:"received_at"`
	Deadline   time.Time     `json:"deadline"`
	Display    string        `json:"display"`
}

func (a *API) handleComputeDeadline(w http.ResponseWriter, r *http.Request) {
	var req deadlineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReceivedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "received_at is required")
		return
	}

	tier, err := deadline.ParseTier(req.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ksiwatch.tier", string(tier)))

	d, err := a.engine.Compute(req.ReceivedAt, tier)
	var ite *deadline.InvalidTierError
	switch {
	case errors.As(err, &ite):
		writeError(w, http.StatusBadRequest, ite.Error())
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "deadline computation failed", "tier", string(tier))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if a.hooks.OnDeadline != nil {
		a.hooks.OnDeadline(tier)
	}

	writeJSON(w, http.StatusOK, deadlineResponse{
		Tier:       tier,
		ReceivedAt: req.ReceivedAt.UTC(),
		Deadline:   d.Instant,
		Display:    a.engine.Format(d),
	})
}
