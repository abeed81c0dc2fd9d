// Package server provides the local development server that exposes a snap
// project directory over HTTP so a host application can fetch the manifest
// and bundle during manual testing.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPort is the conventional local port for snap development.
const DefaultPort = 8081

// Options configures the dev server.
type Options struct {
	// Root is the directory served; typically the project root so both the
	// manifest and the built bundle are reachable.
	Root string

	// Port is the TCP port to listen on. Zero means DefaultPort.
	Port int

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Server is a running dev server handle.
type Server struct {
	addr   string
	logger *slog.Logger
	http   *http.Server
	ln     net.Listener
}

// New creates a dev server for opts without starting it.
func New(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/", withDevHeaders(http.FileServer(http.Dir(opts.Root))))

	return &Server{
		addr:   fmt.Sprintf("localhost:%d", opts.Port),
		logger: opts.Logger,
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr returns the address the server is bound to. Only meaningful after
// Start or Run has been called.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}

	return s.addr
}

// Start binds the listener and begins serving in the background. The
// returned error covers bind failures only; serve errors after a successful
// bind are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.ln = ln
	s.logger.Info("dev server listening", slog.String("addr", s.Addr()))

	go func() {
		if serveErr := s.http.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("dev server stopped", slog.String("error", serveErr.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	return nil
}

// Run binds the listener and serves until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.ln = ln
	s.logger.Info("dev server listening", slog.String("addr", s.Addr()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if serveErr := s.http.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", serveErr)
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.shutdown()

		return nil
	})

	return g.Wait()
}

func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("dev server shutdown", slog.String("error", err.Error()))
	}
}

// withDevHeaders disables caching and allows cross-origin fetches, matching
// what a host application needs when polling a local snap under development.
func withDevHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		next.ServeHTTP(w, r)
	})
}
