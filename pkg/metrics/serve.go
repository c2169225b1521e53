package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saga/pkg/logx"
)

// Serve exposes the default metrics registry over HTTP at /metrics. The
// server starts in the background and shuts down when ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *logx.Logger) {
	if logger == nil {
		logger = logx.NewLogger("metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	logger.Info("metrics exposed on http://%s/metrics", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		// Parent context is already cancelled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed: %v", err)
		}
	}()
}
