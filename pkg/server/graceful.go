package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nodebridge/nodebridge/pkg/logging"
)

// HTTPServer wraps an http.Server with graceful shutdown, used for the
// metrics endpoint that runs beside the command listener.
type HTTPServer struct {
	server       *http.Server
	logger       logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewHTTPServer creates a sidecar HTTP server on addr.
func NewHTTPServer(addr string, handler http.Handler, logger logging.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		logger:     logger.With(logging.F("component", "http")),
		shutdownCh: make(chan struct{}),
	}
}

// Start serves until Shutdown is called. Blocks; run in a goroutine.
func (hs *HTTPServer) Start() error {
	hs.logger.Info("http server started", logging.F("addr", hs.server.Addr))
	if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by timeout.
func (hs *HTTPServer) Shutdown(timeout time.Duration) error {
	var err error
	hs.shutdownOnce.Do(func() {
		close(hs.shutdownCh)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if shutdownErr := hs.server.Shutdown(ctx); shutdownErr != nil {
			err = shutdownErr
			hs.logger.Warn("http shutdown error", logging.Err(shutdownErr))
		} else {
			hs.logger.Info("http server stopped")
		}
	})
	return err
}

// IsShuttingDown reports whether shutdown has been initiated.
func (hs *HTTPServer) IsShuttingDown() bool {
	select {
	case <-hs.shutdownCh:
		return true
	default:
		return false
	}
}
