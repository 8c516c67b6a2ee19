package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(s *Server, deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP fsbridge_commands_registered Number of registered commands.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_commands_registered gauge\n")
		fmt.Fprintf(w, "fsbridge_commands_registered %d\n", len(deps.Commands.Schemas()))

		fmt.Fprintf(w, "# HELP fsbridge_command_calls_total Total command invocations.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_command_calls_total counter\n")
		fmt.Fprintf(w, "fsbridge_command_calls_total %d\n", metrics.CommandsStarted.Load())

		fmt.Fprintf(w, "# HELP fsbridge_command_completed_total Command invocations that returned a result.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_command_completed_total counter\n")
		fmt.Fprintf(w, "fsbridge_command_completed_total %d\n", metrics.CommandsCompleted.Load())

		failures := metrics.FailuresByCode()
		fmt.Fprintf(w, "# HELP fsbridge_command_failures_total Command failures by error code.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_command_failures_total counter\n")
		for _, code := range sortedKeys(failures) {
			fmt.Fprintf(w, "fsbridge_command_failures_total{code=%q} %d\n", code, failures[code])
		}

		fmt.Fprintf(w, "# HELP fsbridge_gateway_clients Connected WebSocket clients.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_gateway_clients gauge\n")
		fmt.Fprintf(w, "fsbridge_gateway_clients %d\n", s.ClientCount())

		if deps.BusStats != nil {
			st := deps.BusStats()
			fmt.Fprintf(w, "# HELP fsbridge_events_published_total Events published on the bus.\n")
			fmt.Fprintf(w, "# TYPE fsbridge_events_published_total counter\n")
			fmt.Fprintf(w, "fsbridge_events_published_total %d\n", st.Published)

			fmt.Fprintf(w, "# HELP fsbridge_event_handler_panics_total Recovered event handler panics.\n")
			fmt.Fprintf(w, "# TYPE fsbridge_event_handler_panics_total counter\n")
			fmt.Fprintf(w, "fsbridge_event_handler_panics_total %d\n", st.Panics)
		}

		fmt.Fprintf(w, "# HELP fsbridge_uptime_seconds Seconds since the service started.\n")
		fmt.Fprintf(w, "# TYPE fsbridge_uptime_seconds gauge\n")
		fmt.Fprintf(w, "fsbridge_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
		fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
		fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

		fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)
	}
}
