// Package ticketapi exposes the triage engine over HTTP.
package ticketapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/docket/internal/ticket"
	"github.com/linnemanlabs/docket/internal/tools"
	"github.com/linnemanlabs/docket/internal/triage"
)

const notifyTimeout = 15 * time.Second

// Engine defines the triage operations the API needs.
type Engine interface {
	Triage(ctx context.Context, t *ticket.Ticket) (*triage.Verdict, error)
	Tools() []tools.ToolDef
	InvokeTool(ctx context.Context, name string, input json.RawMessage) (triage.ToolCall, error)
}

// Notifier is told about escalated verdicts.
type Notifier interface {
	Send(ctx context.Context, triageID string, v *triage.Verdict) error
}

// Store retains recent verdicts for lookup by triage or ticket ID.
type Store interface {
	Put(ctx context.Context, triageID string, v *triage.Verdict) error
	Get(ctx context.Context, triageID string) (*triage.Verdict, bool, error)
	LatestForTicket(ctx context.Context, ticketID string) (string, *triage.Verdict, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	engine   Engine
	notifier Notifier
	store    Store
	auth     func(http.Handler) http.Handler

	// in-flight notifications
	wg sync.WaitGroup
}

// Option configures an API.
type Option func(*API)

// WithNotifier sends escalated verdicts to n in the background.
func WithNotifier(n Notifier) Option {
	return func(a *API) { a.notifier = n }
}

// WithStore keeps verdicts in s and enables the lookup routes.
func WithStore(s Store) Option {
	return func(a *API) { a.store = s }
}

// WithAuth wraps every /api/v1 route in mw.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(a *API) { a.auth = mw }
}

// New creates a new API handler.
func New(logger log.Logger, engine Engine, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if engine == nil {
		panic(xerrors.New("triage engine is required"))
	}
	a := &API{
		logger: logger,
		engine: engine,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth)
		}
		r.Post("/triage", a.handleTriage)
		if a.store != nil {
			r.Get("/triage/{id}", a.handleGetTriage)
			r.Get("/tickets/{ticketID}/triage", a.handleLatestForTicket)
		}
		r.Get("/tools", a.handleListTools)
		r.Post("/tools/{name}", a.handleInvokeTool)
	})
}

// Drain waits for background notifications to finish or ctx to expire.
func (a *API) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
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
