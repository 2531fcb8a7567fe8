// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/flocknet/flocknet/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Process-wide Prometheus gauges, distinct from the per-server Snapshot
// values internal/metrics.Collector accumulates in-process: these exist so
// a live run can be scraped externally while internal/metrics.Collector
// remains the source of truth persisted to results files.
var (
	PacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flocknet_packets_sent_total",
		Help: "Total number of packets agents have sent",
	})
	PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flocknet_packets_received_total",
		Help: "Total number of packets servers have delivered",
	})
	PacketsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flocknet_packets_dropped_total",
		Help: "Total number of packets dropped by an AQM strategy or on delivery failure",
	})
	ServerQueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flocknet_server_queue_length",
		Help: "Current queue occupancy per server",
	}, []string{"server"})
	ServerAvgSojournMS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flocknet_server_avg_sojourn_ms",
		Help: "Rolling average sojourn time per server, in milliseconds",
	}, []string{"server"})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flocknet_circuit_breaker_trips_total",
		Help: "Count of agent-server connections that tripped open",
	})
)

func init() {
	prometheus.MustRegister(
		PacketsSent,
		PacketsReceived,
		PacketsDropped,
		ServerQueueLength,
		ServerAvgSojournMS,
		CircuitBreakerTrips,
	)
}

// StartMetricsServer exposes /metrics and returns the server for
// controlled shutdown. Kept for compatibility with callers that don't need
// the health endpoints StartHTTPServer also registers.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
