// Package httpapi serves the REST and WebSocket boundary described in
// spec.md §6.1/§6.2: workflow control, device pairing, and the sandbox LLM
// proxy, all mounted on one chi router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/persistence"
	"github.com/amelia-orch/amelia/internal/sandbox"
	"github.com/amelia-orch/amelia/internal/state"
)

// WorkflowService is the boundary httpapi depends on to drive workflows;
// the actual graph wiring lives above this package (cmd/amelia) so this
// package can be tested against a fake without assembling the full engine.
type WorkflowService interface {
	Start(ctx context.Context, issue state.Issue, profileID string) (workflowID string, err error)
	Snapshot(ctx context.Context, workflowID string) (state.ExecutionState, error)
	Approve(ctx context.Context, workflowID string) error
	Reject(ctx context.Context, workflowID string, reason string) error
}

// Deps bundles everything the router needs to mount its handlers.
type Deps struct {
	Workflows       WorkflowService
	Pairing         persistence.PairingStore
	Events          *events.Manager
	EventLog        events.EventLog
	ResolveProvider sandbox.ResolveProvider
	Logger          *zap.Logger
	AllowedOrigins  []string
}

// NewRouter builds the full chi router: middleware stack, REST endpoints,
// /ws/events, and the /proxy/v1 mount from internal/sandbox.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(zapRequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Amelia-Profile"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	wh := &workflowHandlers{svc: d.Workflows, logger: d.Logger}
	ph := &pairingHandlers{
		store:         d.Pairing,
		logger:        d.Logger,
		generateLimit: rate.NewLimiter(rate.Every(time.Minute/5), 5),
		exchangeLimit: rate.NewLimiter(rate.Every(time.Minute/10), 10),
		generatePerIP: map[string]*rate.Limiter{},
		exchangePerIP: map[string]*rate.Limiter{},
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/pair", func(pr chi.Router) {
			pr.Post("/generate", ph.generate)
			pr.Post("/exchange", ph.exchange)

			pr.Group(func(authed chi.Router) {
				authed.Use(deviceAuth(d.Pairing, d.Logger))
				authed.Get("/devices", ph.listDevices)
				authed.Delete("/devices/{id}", ph.revokeDevice)
			})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(deviceAuth(d.Pairing, d.Logger))

			authed.Route("/workflows", func(wr chi.Router) {
				wr.Post("/", wh.start)
				wr.Get("/{id}", wh.snapshot)
				wr.Post("/{id}/approve", wh.approve)
				wr.Post("/{id}/reject", wh.reject)
			})
		})
	})

	r.Get("/ws/events", events.Handler(d.Events, d.EventLog, wsAuthenticate(d.Pairing)))

	if d.ResolveProvider != nil {
		sandbox.Mount(r, d.ResolveProvider)
	}

	return r
}
