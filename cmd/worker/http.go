package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mailpilot/internal/httpserver"
)

func newHTTPServer(addr string, logger *zap.Logger, health httpserver.HealthFunc) *http.Server {
	router := httpserver.NewRouter(logger, health)
	return &http.Server{
		Addr:              addr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) {
	logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server failed", zap.Error(err))
	}
}

func shutdownHTTP(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
}
