// Package gateway serves the operator over HTTP for external renderers and
// pushes every snapshot to websocket observers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"agentdesk/internal/gateway/handlers"
	"agentdesk/internal/gateway/middleware"
	"agentdesk/internal/gateway/websocket"
	"agentdesk/internal/operator"
	"agentdesk/internal/thread"
	"agentdesk/pkg/logger"
)

// Options configures the gateway.
type Options struct {
	Version   string
	Addr      string
	Operator  *operator.Operator
	Hub       *websocket.Hub
	Decisions handlers.DecisionLister
	Health    handlers.StatusFunc
	// Origins allowed for browser observers; empty allows any.
	Origins []string
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *websocket.Hub
	op         *operator.Operator

	mu          sync.Mutex
	unsubscribe func()
}

// NewServer creates a new gateway server.
func NewServer(opts Options) *Server {
	router := mux.NewRouter()
	hub := opts.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}

	// Apply middleware chain: Recovery -> RequestID -> Logging -> CORS
	handler := middleware.Recovery(
		middleware.RequestID(
			middleware.Logging(
				middleware.CORS(opts.Origins...)(router),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Addr:        opts.Addr,
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		router: router,
		hub:    hub,
		op:     opts.Operator,
	}

	router.HandleFunc("/api/v1/health", handlers.HealthHandler(opts.Version, opts.Health)).Methods("GET")
	handlers.NewOperatorHandler(opts.Operator, opts.Decisions).RegisterRoutes(router)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	hub.SetWelcome(s.welcome)
	return s
}

// Start runs the hub, begins pushing snapshots and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(l)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	handlers.InitStartTime()
	go s.hub.Run()

	s.mu.Lock()
	s.unsubscribe = s.op.Session().Subscribe(s.publish)
	s.mu.Unlock()

	logger.Info().
		Str("addr", l.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// publish pushes a snapshot and the matching interrupt view to observers.
func (s *Server) publish(snap thread.Snapshot) {
	if err := s.hub.BroadcastAll(websocket.TypeSnapshot, snap); err != nil {
		return
	}
	_ = s.hub.BroadcastAll(websocket.TypeInterrupt, s.op.View())
}

func (s *Server) welcome() [][]byte {
	var out [][]byte
	if data, err := websocket.Encode(websocket.TypeSnapshot, s.op.Session().Snapshot()); err == nil {
		out = append(out, data)
	}
	if data, err := websocket.Encode(websocket.TypeInterrupt, s.op.View()); err == nil {
		out = append(out, data)
	}
	return out
}
