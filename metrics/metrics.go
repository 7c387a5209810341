// Package metrics exposes Prometheus instrumentation for the parley relay.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Protocol outcome counters, incremented by the coordinator and replay guard.
var (
	ExchangesInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "exchanges_initiated_total",
		Help:      "Key exchanges created in pending state.",
	})
	ExchangesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "exchanges_completed_total",
		Help:      "Key exchanges completed by a responder.",
	})
	ExchangesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "exchanges_expired_total",
		Help:      "Expired exchange records removed by garbage collection.",
	})
	MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "messages_accepted_total",
		Help:      "Secure messages that passed all replay checks.",
	})
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "messages_rejected_total",
		Help:      "Secure messages rejected by the replay guard, by reason.",
	}, []string{"reason"})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the named service bound to addr. An empty
// addr is allowed and yields a server that never listens; callers can treat
// it uniformly.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s metrics server; scrape /metrics\n", name)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe starts serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
