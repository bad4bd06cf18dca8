// Package mock serves a JSONPlaceholder-like users resource so suites can
// run offline and in tests.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/apicontract/packages/logging"
)

const DefaultPort = 3000

type Server struct {
	router  *Router
	port    int
	delay   time.Duration
	verbose bool
	logger  logging.Logger
}

type Option func(*Server)

func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose logs every request.
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		router: NewRouter(),
		port:   DefaultPort,
		logger: logging.Discard,
	}
	registerUsers(s.router)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns all registered routes
func (s *Server) Routes() []*Route {
	return s.router.Routes()
}

// Handler returns the fixture as an http.Handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// StartWithContext serves until ctx is done, then shuts down gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("mock server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("mock server listening on http://%s", ln.Addr())
	if s.verbose {
		for _, route := range s.router.Routes() {
			s.logger.Printf("  %s %s (%s)", route.Method, route.PathPattern, route.Name)
		}
	}

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	status, body := http.StatusNotFound, any(empty)
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	route, params, pathMatched := s.router.Match(method, r.URL.Path)
	switch {
	case route != nil:
		status, body = route.Handler(r, params)
	case pathMatched && r.Method == http.MethodOptions:
		status = http.StatusNoContent
		body = nil
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Powered-By", "apicontract-mock")
	w.WriteHeader(status)
	if body != nil && r.Method != http.MethodHead {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(body)
	}

	if s.verbose {
		name := "no route"
		if route != nil {
			name = route.Name + idOf(params)
		}
		s.logger.Printf("%s %s -> %d %s (%s)", r.Method, r.URL.RequestURI(), status, name, time.Since(start).Round(time.Microsecond))
	}
}
