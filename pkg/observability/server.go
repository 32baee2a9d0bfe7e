package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server exposes the health, metrics and any registered status
// endpoints on one listener.
type Server struct {
	httpServer *http.Server
	port       int
	extra      map[string]http.Handler
}

// NewServer creates a server on the given port.
func NewServer(port int) *Server {
	return &Server{port: port, extra: make(map[string]http.Handler)}
}

// Handle registers an additional endpoint. Must be called before
// Start.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.extra[pattern] = handler
}

// Start serves until shutdown or listener failure.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", ReadinessHandler())
	mux.Handle("/metrics", MetricsHandler())
	for pattern, handler := range s.extra {
		mux.Handle(pattern, handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
