// Package telemetry exposes Nexus's run-time counters and histograms as
// Prometheus metrics, scraped over HTTP via promhttp rather than pushed.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusdev/nexus/internal/models"
)

// Metrics holds Nexus's Prometheus collectors. During a run only
// StageDuration is updated (through ObserveStage); the task counters and
// IterationsTotal are registered but nothing increments or observes them.
type Metrics struct {
	TasksStarted    prometheus.Counter
	TasksCompleted  prometheus.Counter
	TasksAbandoned  prometheus.Counter
	TasksEscalated  prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	IterationsTotal prometheus.Histogram
}

// NewMetrics registers Nexus's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_tasks_started_total",
			Help: "Tasks that entered the Coding state at least once.",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_tasks_completed_total",
			Help: "Tasks that reached the Done state.",
		}),
		TasksAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_tasks_abandoned_total",
			Help: "Tasks marked Abandoned, including cascades.",
		}),
		TasksEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_tasks_escalated_total",
			Help: "Tasks that opened an escalation package.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_stage_duration_seconds",
			Help:    "Wall-clock duration of a single Build/Lint/Test/Review stage run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		IterationsTotal: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_task_iterations",
			Help:    "Iteration count a task consumed before reaching a terminal state.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
		}),
	}
}

// ObserveStage records a stage's duration by name.
func (m *Metrics) ObserveStage(stage models.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// Server serves /metrics on addr until ctx is cancelled.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server exposing reg's collectors over HTTP.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Run starts the server and blocks until ctx is cancelled or ListenAndServe
// fails for a reason other than a graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("telemetry: listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telemetry: serve: %w", err)
	}
}
