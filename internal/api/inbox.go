package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ksiwatch/internal/inbox"
)

func (a *API) handleScanMessage(w http.ResponseWriter, r *http.Request) {
	var msg inbox.Message
	if !decodeBody(w, r, &msg) {
		return
	}
	if msg.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if msg.ReceivedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "received_at is required")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("ksiwatch.message_id", msg.ID))

	res, err := a.inbox.Scan(r.Context(), &msg)
	if err != nil {
		// the scanner has logged with message_id and tier and released the
		// id, so the sender may retry
		http.Error(w, `{"error":"scan failed"}`, http.StatusBadGateway)
		return
	}

	span.SetAttributes(attribute.String("ksiwatch.scan.outcome", res.Outcome))

	status := http.StatusOK
	if res.Outcome == inbox.OutcomeNotified {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}
