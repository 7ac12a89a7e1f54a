package ticketapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/triage"
)

// TriageResponse is the body returned by POST /api/v1/triage.
type TriageResponse struct {
	TriageID string          `json:"triage_id"`
	Verdict  *triage.Verdict `json:"verdict"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var t ticket.Ticket
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	id := ulid.Make().String()
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("docket.triage.id", id),
		attribute.String("docket.ticket.id", t.ID),
	)

	v, err := a.engine.Triage(r.Context(), &t)
	if err != nil {
		if errors.Is(err, triage.ErrInvalidTicket) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error(r.Context(), err, "triage failed", "triage_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(
		attribute.String("docket.verdict.action", string(v.Action)),
		attribute.String("docket.verdict.urgency", string(v.Urgency)),
	)

	if a.store != nil {
		// lookup is best effort; the verdict is still returned
		if err := a.store.Put(r.Context(), id, v); err != nil {
			a.logger.Error(r.Context(), err, "store verdict failed", "triage_id", id)
		}
	}

	if a.notifier != nil && v.Action == triage.ActionEscalateToHuman {
		a.notify(r.Context(), id, v)
	}

	writeJSON(w, http.StatusOK, TriageResponse{TriageID: id, Verdict: v})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "get verdict failed", "triage_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "triage not found")
		return
	}
	writeJSON(w, http.StatusOK, TriageResponse{TriageID: id, Verdict: v})
}

func (a *API) handleLatestForTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	id, v, ok, err := a.store.LatestForTicket(r.Context(), ticketID)
	if err != nil {
		a.logger.Error(r.Context(), err, "get verdict failed", "ticket_id", ticketID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no triage for ticket")
		return
	}
	writeJSON(w, http.StatusOK, TriageResponse{TriageID: id, Verdict: v})
}

// notify sends in the background; the request does not wait on Slack.
func (a *API) notify(ctx context.Context, id string, v *triage.Verdict) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if err := a.notifier.Send(ctx, id, v); err != nil {
			a.logger.Error(ctx, err, "escalation notification failed", "triage_id", id, "ticket_id", v.TicketID)
		}
	}()
}
