package api

import (
	"net/http"
	"time"

	"github.com/hashyield/dash/internal/events"
	"github.com/hashyield/dash/internal/resolver"
)

// ServerDeps bundles the collaborators the HTTP server exposes.
type ServerDeps struct {
	Positions  PositionReader
	Actions    ActionExecutor
	Activities ActivityLister // optional
	Recipients RecipientLookup
	Health     HealthReporter // optional
	Bus        *events.Bus
	Debounce   time.Duration
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, deps ServerDeps) *http.Server {
	handler := NewHandler(deps.Positions, deps.Actions, deps.Activities, deps.Recipients, deps.Health)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/positions/{account}", handler.GetPositions)
	mux.HandleFunc("POST /api/v1/actions", handler.ExecuteAction)
	mux.HandleFunc("GET /api/v1/actions/{id}", handler.GetActionStatus)
	mux.HandleFunc("DELETE /api/v1/actions/{id}", handler.DiscardAction)
	mux.HandleFunc("GET /api/v1/activity/{account}", handler.ListActivity)
	mux.HandleFunc("GET /api/v1/recipients/{account}", handler.ResolveRecipient)
	mux.HandleFunc("GET /api/v1/report", handler.GetHealthReport)

	if deps.Bus != nil {
		mux.Handle("GET /api/v1/events", NewEventsHandler(deps.Bus))
	}
	if deps.Recipients != nil {
		var lookup resolver.AccountLookup = deps.Recipients
		mux.Handle("GET /api/v1/resolve", NewResolveHandler(lookup, deps.Debounce))
	}

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
