package site

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/louisbranch/pagesnap/internal/platform/timeouts"
)

// Server hosts the site handler over HTTP.
type Server struct {
	httpAddr   string
	httpServer *http.Server
}

// NewServer wraps handler in an HTTP server bound to httpAddr.
func NewServer(httpAddr string, handler http.Handler) (*Server, error) {
	httpAddr = strings.TrimSpace(httpAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	return &Server{
		httpAddr: httpAddr,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests,
// snapshot runs included, are drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("site server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe over an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s == nil {
		return errors.New("site server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	serveErr := make(chan error, 1)
	log.Printf("site listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
