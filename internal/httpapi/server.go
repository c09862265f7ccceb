package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Server wraps a Handler with an http.Server for lifecycle management,
// binding eagerly so an auto-assigned port (":0") is known before
// Start is called.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	port     int
}

// NewServer binds addr and wraps handler's routes in an http.Server.
// SSE responses have no write timeout.
func NewServer(addr string, handler *Handler) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		listener: listener,
		port:     port,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start blocks serving requests until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	wolog.Info(context.Background(), "http_server_started", "addr", s.listener.Addr().String())
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	wolog.Info(ctx, "http_server_stopping")
	return s.server.Shutdown(ctx)
}

// Port returns the bound TCP port, useful when addr requested ":0".
func (s *Server) Port() int {
	return s.port
}
