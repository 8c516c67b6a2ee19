package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"fsbridge/internal/domain"
	"fsbridge/internal/usecase/eventbus"
)

// MethodCommandList returns the schemas of every registered command.
const MethodCommandList = "command.list"

// HandlerDeps holds dependencies needed by RPC and REST handlers.
type HandlerDeps struct {
	Commands domain.CommandInvoker
	Bus      domain.EventBus
	BusStats func() eventbus.Stats // can be nil
	Logger   *slog.Logger
}

// BuildInfo identifies the running service in status responses.
type BuildInfo struct {
	Name    string
	Version string
}

// RegisterDefaultHandlers exposes every registered command as an RPC method
// of the same name, plus command.list.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	for _, schema := range deps.Commands.Schemas() {
		s.RegisterHandler(schema.Name, commandHandler(deps, schema.Name))
	}
	s.RegisterHandler(MethodCommandList, commandListHandler(deps))
}

// commandHandler forwards the request payload as command params and returns
// the bare result value: a JSON string for text, a JSON bool for existence.
func commandHandler(deps HandlerDeps, name string) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		result, err := deps.Commands.Invoke(ctx, name, payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result.Value())
	}
}

func commandListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Commands.Schemas())
	}
}

// RegisterRESTHandlers registers the HTTP endpoints on the gateway server.
// /healthz is open; /api/v1/status and /metrics require the same credentials
// as the WebSocket endpoint.
func RegisterRESTHandlers(s *Server, deps HandlerDeps, info BuildInfo) *Metrics {
	startTime := time.Now()
	metrics := NewMetrics()

	if deps.Bus != nil {
		deps.Bus.Subscribe(domain.EventCommandStarted, func(_ context.Context, _ domain.Event) {
			metrics.CommandsStarted.Add(1)
		})
		deps.Bus.Subscribe(domain.EventCommandCompleted, func(_ context.Context, _ domain.Event) {
			metrics.CommandsCompleted.Add(1)
		})
		deps.Bus.Subscribe(domain.EventCommandFailed, func(_ context.Context, e domain.Event) {
			var p domain.CommandEventPayload
			_ = json.Unmarshal(e.Payload, &p)
			metrics.recordFailure(p.Code)
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(bearerToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/healthz", healthHandler())
	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(s, deps, info, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(s, deps, startTime, metrics)))

	return metrics
}

// HealthResponse is the JSON body returned by GET /healthz.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Time: time.Now().UTC()})
	}
}
