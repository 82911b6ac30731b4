package observability

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/tphakala/playrec/internal/conf"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
	metricspkg "github.com/tphakala/playrec/internal/observability/metrics"
)

// ErrMetricsDisabled is returned by NewEndpoint when metrics are turned off.
var ErrMetricsDisabled = errors.NewStd("metrics endpoint not enabled in settings")

// Endpoint serves the metrics registry over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	path          string
	metrics       *Metrics
}

// NewEndpoint creates a metrics endpoint from settings. It returns ErrMetricsDisabled
// when settings.Enabled is false.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, ErrMetricsDisabled
	}
	path := settings.Path
	if path == "" {
		path = "/metrics"
	}

	e := &Endpoint{
		listenAddress: settings.Listen,
		path:          path,
		metrics:       metrics,
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux, path)
	registerDebugHandlers(mux)
	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return e, nil
}

// registerDebugHandlers adds pprof routes.
func registerDebugHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// Handler returns the endpoint's HTTP handler.
func (e *Endpoint) Handler() http.Handler {
	return e.server.Handler
}

// Run listens on the configured address and serves until ctx is cancelled, then shuts
// the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	log := GetLogger()
	log.Info("metrics endpoint starting",
		logger.String("address", ln.Addr().String()),
		logger.String("path", e.path))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Build()
	case <-ctx.Done():
	}

	log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
