// Package httpapi exposes the coordination services over HTTP. The surface is
// JSON-only with strict request decoding; unknown fields are rejected at the
// boundary.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/example/coord/internal/ctxutil"
	"github.com/example/coord/internal/ports/primary"
)

// Services bundles the primary ports the API fronts.
type Services struct {
	Reconciler primary.ReconcilerService
	Messenger  primary.MessengerService
	Raci       primary.RaciService
	Lifecycle  primary.LifecycleService
	Spend      primary.SpendService
	Monitor    primary.MonitorService
}

// Server wraps the HTTP listener and handlers.
type Server struct {
	addr     string
	services Services
	logger   *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer prepares an API server. Start binds the listener.
func NewServer(addr string, services Services, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		services: services,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /executions/{workItemID}/events", s.handleIngestEvent)
	mux.HandleFunc("GET /executions/{workItemID}", s.handleGetExecution)
	mux.HandleFunc("GET /executions", s.handleListExecutions)
	mux.HandleFunc("POST /executions/{workItemID}/cancel", s.handleCancelExecution)
	mux.HandleFunc("POST /executions/{executionID}/phases/{phase}/approve", s.handleApprove)
	mux.HandleFunc("POST /executions/{executionID}/phases/{phase}/veto", s.handleVeto)

	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("GET /messages/{id}", s.handleGetMessage)
	mux.HandleFunc("POST /messages/{id}/ack", s.handleAckMessage)
	mux.HandleFunc("POST /messages/{id}/respond", s.handleRespondMessage)

	mux.HandleFunc("GET /raci/{workflowID}/{phase}/{taskType}", s.handleResolveRaci)

	mux.HandleFunc("POST /instances", s.handleCreateInstance)
	mux.HandleFunc("GET /instances", s.handleListInstances)
	mux.HandleFunc("GET /instances/{id}", s.handleGetInstance)
	mux.HandleFunc("POST /instances/{id}/transition", s.handleTransition)
	mux.HandleFunc("GET /instances/{id}/lifecycle", s.handleLifecycleHistory)
	mux.HandleFunc("POST /instances/{id}/charge", s.handleCharge)
	mux.HandleFunc("GET /instances/{id}/spend", s.handleSpendStatus)
	mux.HandleFunc("GET /instances/{id}/health", s.handleInstanceHealth)
	mux.HandleFunc("POST /instances/{id}/health", s.handleRecordHealthCheck)

	mux.HandleFunc("POST /metrics", s.handleRecordMetric)
	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("POST /alerts/{id}/ack", s.handleAckAlert)

	return s.logRequests(withActor(mux))
}

// Start binds the TCP listener and serves until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", listener.Addr().String())
	return nil
}

// Addr reports the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withActor threads the caller identity from the X-Actor-ID header into the
// request context, where handlers use it for attribution.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor-ID"); actor != "" {
			r = r.WithContext(ctxutil.WithActorID(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
