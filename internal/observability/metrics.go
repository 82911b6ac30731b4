// Package observability provides the Prometheus endpoint for playrec.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Stream   *metrics.StreamMetrics
}

// NewMetrics creates a registry with the Go runtime and process collectors and the
// stream collector.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, metricsError(err, "go_collector")
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, metricsError(err, "process_collector")
	}

	streamMetrics, err := metrics.NewStreamMetrics(registry)
	if err != nil {
		return nil, metricsError(err, "stream_metrics")
	}

	return &Metrics{
		registry: registry,
		Stream:   streamMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint at path on mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux, path string) {
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

// promErrorLog forwards promhttp errors to the module logger.
type promErrorLog struct{}

func (promErrorLog) Println(v ...any) {
	GetLogger().Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}

func metricsError(err error, collector string) error {
	return errors.New(err).
		Component("observability").
		Category(errors.CategorySystem).
		Context("collector", collector).
		Build()
}
