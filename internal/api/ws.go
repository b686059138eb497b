package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hashyield/dash/internal/events"
	"github.com/hashyield/dash/internal/resolver"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboard connects cross-origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventsHandler pushes bus events to websocket clients so the dashboard can
// refresh without polling.
type EventsHandler struct {
	bus *events.Bus
}

// NewEventsHandler creates a new events websocket handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// ServeHTTP handles GET /api/v1/events. A `kinds` query parameter narrows
// the subscription; without it the client receives every event.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var kinds []events.Kind
	for _, k := range r.URL.Query()["kinds"] {
		kinds = append(kinds, events.Kind(k))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe(kinds...)
	defer cancel()

	// Reader goroutine: drain client frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ResolveHandler runs the debounced recipient resolver over a websocket:
// each text frame is one input snapshot, each pushed message one resolution
// outcome. Superseded inputs produce no output at all.
type ResolveHandler struct {
	lookup   resolver.AccountLookup
	debounce time.Duration
}

// NewResolveHandler creates a new resolve websocket handler.
func NewResolveHandler(lookup resolver.AccountLookup, debounce time.Duration) *ResolveHandler {
	return &ResolveHandler{lookup: lookup, debounce: debounce}
}

type resolveInput struct {
	Input string `json:"input"`
}

type resolveOutput struct {
	Input     string `json:"input"`
	AccountID string `json:"accountId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Name      string `json:"displayName,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP handles GET /api/v1/resolve.
func (h *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	res := resolver.New(h.lookup, h.debounce)
	defer res.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in resolveInput
			if err := json.Unmarshal(data, &in); err != nil {
				slog.Warn("ignoring malformed resolve frame", "error", err)
				continue
			}
			res.OnInput(in.Input)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case result := <-res.Results():
			out := resolveOutput{
				Input:     result.Input,
				AccountID: result.Recipient.AccountID,
				UserID:    result.Recipient.UserID,
				Name:      result.Recipient.DisplayName,
			}
			if result.Err != nil {
				out.Error = result.Err.Error()
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}
