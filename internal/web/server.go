// Package web serves the evidence HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

type Server struct {
	*Router

	addr            string
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

func NewServer(cfg ServerConfig, controllers ...Controller) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rootRouter := NewRouter()
	rootRouter.Use(recoverer(logger))
	rootRouter.Use(requestLogger(logger))
	if cfg.MaxUploadBytes > 0 {
		rootRouter.Use(middleware.BodyLimit(fmt.Sprintf("%dK", cfg.MaxUploadBytes>>10)))
	}
	rootRouter.Register(controllers...)

	return &Server{
		Router:          rootRouter,
		addr:            cfg.Addr,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          logger,
	}
}

// Listen binds the configured address. Port 0 picks a free port.
func (server *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", server.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", server.addr, err)
	}
	server.Server.Addr = ln.Addr().String()

	server.logger.Info("evidence server listening", zap.String("addr", ln.Addr().String()))
	return ln, nil
}

// Run serves on ln until ctx is done, then shuts down gracefully.
func (server *Server) Run(ctx context.Context, ln net.Listener) error {
	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		<-ctx.Done()
		server.logger.Info("shutting down evidence server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := server.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error starting evidence server: %w", err)
	}
	defer server.logger.Info("evidence server stopped")

	return errGroup.Wait()
}
