package gateway

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fsbridge/internal/domain"
	"fsbridge/internal/usecase/eventbus"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus   `json:"service"`
	Commands CommandStatus   `json:"commands"`
	Gateway  GatewayStatus   `json:"gateway"`
	Bus      *eventbus.Stats `json:"bus,omitempty"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CommandStatus holds command usage stats.
type CommandStatus struct {
	Registered   []string         `json:"registered"`
	CallsTotal   int64            `json:"calls_total"`
	FailedTotal  int64            `json:"failed_total"`
	FailedByCode map[string]int64 `json:"failed_by_code,omitempty"`
}

// GatewayStatus holds connection counts.
type GatewayStatus struct {
	Clients int `json:"clients"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	CommandsStarted   atomic.Int64
	CommandsCompleted atomic.Int64
	CommandsFailed    atomic.Int64

	mu           sync.Mutex
	failedByCode map[domain.ErrorCode]int64
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{failedByCode: make(map[domain.ErrorCode]int64)}
}

func (m *Metrics) recordFailure(code domain.ErrorCode) {
	if code == "" {
		code = domain.CodeUnknown
	}
	m.CommandsFailed.Add(1)
	m.mu.Lock()
	m.failedByCode[code]++
	m.mu.Unlock()
}

// FailuresByCode returns a snapshot of failure counts keyed by error code.
func (m *Metrics) FailuresByCode() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.failedByCode))
	for code, n := range m.failedByCode {
		out[string(code)] = n
	}
	return out
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(s *Server, deps HandlerDeps, info BuildInfo, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		schemas := deps.Commands.Schemas()
		names := make([]string, 0, len(schemas))
		for _, sc := range schemas {
			names = append(names, sc.Name)
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          info.Name,
				Version:       info.Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Commands: CommandStatus{
				Registered:   names,
				CallsTotal:   metrics.CommandsStarted.Load(),
				FailedTotal:  metrics.CommandsFailed.Load(),
				FailedByCode: metrics.FailuresByCode(),
			},
			Gateway: GatewayStatus{Clients: s.ClientCount()},
		}
		if deps.BusStats != nil {
			st := deps.BusStats()
			resp.Bus = &st
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
