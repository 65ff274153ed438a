package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// readHeaderTimeout bounds how long the metrics server waits for request headers.
const readHeaderTimeout = 5 * time.Second

// ServeMetrics starts an HTTP server on addr exposing /metrics, /healthz and
// /readyz. It returns a shutdown function that stops the server gracefully.
func ServeMetrics(addr string, metricsHandler http.Handler, logger *slog.Logger, checks ...ReadyCheck) func(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(checks...))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()

	return func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		if err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}

		return nil
	}
}
