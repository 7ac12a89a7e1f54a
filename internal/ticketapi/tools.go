package ticketapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/docket/internal/tools"
	"github.com/linnemanlabs/docket/internal/triage"
)

func (a *API) handleListTools(w http.ResponseWriter, _ *http.Request) {
	defs := a.engine.Tools()
	if defs == nil {
		defs = []tools.ToolDef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs})
}

func (a *API) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("gen_ai.tool.name", name))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "tool input must be JSON")
		return
	}

	tc, err := a.engine.InvokeTool(r.Context(), name, body)
	if err != nil {
		if errors.Is(err, triage.ErrUnknownTool) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		a.logger.Error(r.Context(), err, "tool invocation failed", "tool", name)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// tool failures are part of the record, not an HTTP error
	writeJSON(w, http.StatusOK, tc)
}
