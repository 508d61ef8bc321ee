package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler returns an http.Handler serving Prometheus text format.
// Hand-rolled exposition keeps the dependency surface small; mount it at
// "/metrics".
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"germinal_events_processed_total", "Events processed to a terminal state", "counter", atomic.LoadUint64(&m.metrics.EventsProcessed)},
			{"germinal_events_failed_total", "Events that ended failed", "counter", atomic.LoadUint64(&m.metrics.EventsFailed)},

			{"germinal_invocations_total", "Agent invocations run", "counter", atomic.LoadUint64(&m.metrics.InvocationsTotal)},
			{"germinal_invocations_failed_total", "Agent invocations that ended failed", "counter", atomic.LoadUint64(&m.metrics.InvocationsFailed)},

			{"germinal_tool_calls_total", "Tool calls dispatched", "counter", atomic.LoadUint64(&m.metrics.ToolCallsTotal)},
			{"germinal_tool_calls_success_total", "Tool calls that executed successfully", "counter", atomic.LoadUint64(&m.metrics.ToolCallsSuccess)},
			{"germinal_tool_calls_failed_total", "Tool calls that failed or were denied", "counter", atomic.LoadUint64(&m.metrics.ToolCallsFailed)},

			{"germinal_model_calls_total", "LLM round trips", "counter", atomic.LoadUint64(&m.metrics.ModelCallsTotal)},
			{"germinal_approvals_requested_total", "Approval gate requests, prompted or auto-denied", "counter", atomic.LoadUint64(&m.metrics.ApprovalsRequested)},

			{"germinal_queue_depth", "Queue depth as last set via SetQueueDepth (0 until set)", "gauge", atomic.LoadInt64(&m.metrics.QueueDepth)},
			{"germinal_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			{"germinal_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"germinal_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			fmt.Fprintf(w, "%s %v\n", l.name, l.val)
		}
	})
}
