package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/pretty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

func (a *API) handleMergeComponent(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	component := chi.URLParam(r, "component")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("ksiwatch.category", category),
		attribute.String("ksiwatch.component", component),
	)

	// any component in the body is overridden by the path
	var res evidence.Result
	if !decodeBody(w, r, &res) {
		return
	}
	res.Component = component

	err := a.evidence.Merge(r.Context(), category, &res)

	var mre *evidence.MalformedResultError
	var mce *evidence.MergeConflictError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"category":  category,
			"component": component,
			"status":    "merged",
		})
	case errors.Is(err, evidence.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &mre):
		writeError(w, http.StatusUnprocessableEntity, mre.Error())
	case errors.As(err, &mce):
		writeError(w, http.StatusConflict, mce.Error())
	default:
		// aggregator already logged with category and component
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func (a *API) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ksiwatch.category", category))

	doc, ok, err := a.evidence.Document(r.Context(), category)
	if !a.checkLookup(w, r, category, ok, err) {
		return
	}

	if r.URL.Query().Get("pretty") != "" {
		doc = pretty.Pretty(doc)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func (a *API) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ksiwatch.category", category))

	s, ok, err := a.evidence.Summary(r.Context(), category)
	if !a.checkLookup(w, r, category, ok, err) {
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, s)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+category+`-summary.csv"`)
		if err := evidence.RenderCSV(w, *s); err != nil {
			a.logger.Error(r.Context(), err, "failed to render summary csv", "category", category)
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.evidence.Categories(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list categories")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// checkLookup writes the error response for a failed or empty lookup and
// reports whether the handler should continue.
func (a *API) checkLookup(w http.ResponseWriter, r *http.Request, category string, ok bool, err error) bool {
	switch {
	case errors.Is(err, evidence.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	case err != nil:
		a.logger.Error(r.Context(), err, "failed to load evidence", "category", category)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return false
	case !ok:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return false
	}
	return true
}
