// Package server is the Haven HTTP API: public donation settings, the admin
// settings endpoints, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/settings"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store          settings.Store
	Verifier       *auth.Verifier
	Logger         *zap.Logger
	Port           int
	AllowedOrigins []string
	Out            io.Writer
}

// NewRouter builds the gin engine with middleware and routes registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("server: verifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := newMetrics()
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(opts.Logger.Named("http")))
	router.Use(m.middleware())
	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	registerRoutes(router, routeDeps{
		store:    m.instrument(opts.Store),
		verifier: opts.Verifier,
		logger:   opts.Logger,
		metrics:  m,
	})
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 5000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown(srv, opts.Logger, shutdownTimeout)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Haven API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

const shutdownTimeout = 10 * time.Second

// shutdown drains in-flight requests for up to timeout.
func shutdown(srv *http.Server, log *zap.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("Server shutdown did not complete", zap.Error(err))
		return
	}
	log.Info("Server stopped")
}
