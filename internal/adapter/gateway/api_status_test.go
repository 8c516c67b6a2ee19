package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsbridge/internal/domain"
	"fsbridge/internal/usecase/eventbus"
)

type stubInvoker struct{}

func (stubInvoker) Schemas() []domain.CommandSchema {
	return []domain.CommandSchema{{Name: "file_exists"}, {Name: "read_all_text"}}
}

func apiTestDeps() HandlerDeps {
	return HandlerDeps{
		Commands: invokerOnly{stubInvoker{}},
		BusStats: func() eventbus.Stats { return eventbus.Stats{Published: 7, Subscribers: 3} },
		Logger:   testLogger(),
	}
}

// invokerOnly adapts stubInvoker to domain.CommandInvoker; Invoke is never
// reached by the REST handlers.
type invokerOnly struct{ stubInvoker }

func (invokerOnly) Invoke(_ context.Context, name string, _ json.RawMessage) (domain.CommandResult, error) {
	return domain.CommandResult{}, domain.NewDomainError("stub", domain.ErrCommandNotFound, name)
}

func TestStatusHandler_Success(t *testing.T) {
	deps := apiTestDeps()
	metrics := NewMetrics()
	metrics.CommandsStarted.Store(42)
	metrics.recordFailure(domain.CodeNotFound)
	metrics.recordFailure(domain.CodeNotFound)
	metrics.recordFailure(domain.CodeIsADirectory)

	srv := NewServer(nil, NoAuth{}, "127.0.0.1:0", testLogger())
	handler := statusHandler(srv, deps, BuildInfo{Name: "fsbridge", Version: "1.2.3"},
		time.Now().Add(-60*time.Second), metrics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.Equal(t, "fsbridge", resp.Service.Name)
	assert.Equal(t, "1.2.3", resp.Service.Version)
	assert.GreaterOrEqual(t, resp.Service.UptimeSeconds, int64(59))
	assert.Equal(t, []string{"file_exists", "read_all_text"}, resp.Commands.Registered)
	assert.Equal(t, int64(42), resp.Commands.CallsTotal)
	assert.Equal(t, int64(3), resp.Commands.FailedTotal)
	assert.Equal(t, int64(2), resp.Commands.FailedByCode["NOT_FOUND"])
	require.NotNil(t, resp.Bus)
	assert.Equal(t, uint64(7), resp.Bus.Published)
	assert.Equal(t, 0, resp.Gateway.Clients)
}

func TestStatusHandler_MethodNotAllowed(t *testing.T) {
	srv := NewServer(nil, NoAuth{}, "127.0.0.1:0", testLogger())
	handler := statusHandler(srv, apiTestDeps(), BuildInfo{}, time.Now(), NewMetrics())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics()
	metrics.CommandsStarted.Store(5)
	metrics.CommandsCompleted.Store(4)
	metrics.recordFailure(domain.CodeInvalidEncoding)
	metrics.recordFailure("")

	srv := NewServer(nil, NoAuth{}, "127.0.0.1:0", testLogger())
	handler := metricsHandler(srv, apiTestDeps(), time.Now(), metrics)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	body := w.Body.String()
	for _, want := range []string{
		"fsbridge_commands_registered 2",
		"fsbridge_command_calls_total 5",
		"fsbridge_command_completed_total 4",
		`fsbridge_command_failures_total{code="INVALID_ENCODING"} 1`,
		`fsbridge_command_failures_total{code="UNKNOWN"} 1`,
		"fsbridge_events_published_total 7",
		"go_goroutines",
	} {
		assert.Contains(t, body, want)
	}
}

func TestHealthHandler(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	healthHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Time.After(before))

	req = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w = httptest.NewRecorder()
	healthHandler()(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRESTAuth(t *testing.T) {
	srv := NewServer(nil, newTestAuth(), "127.0.0.1:0", testLogger())
	RegisterRESTHandlers(srv, apiTestDeps(), BuildInfo{Name: "fsbridge"})
	h := srv.Handler()

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"health open", "/healthz", "", http.StatusOK},
		{"status no token", "/api/v1/status", "", http.StatusUnauthorized},
		{"status query token", "/api/v1/status?token=test-token", "", http.StatusOK},
		{"metrics bearer", "/metrics", "Bearer test-token", http.StatusOK},
		{"metrics bad bearer", "/metrics", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
