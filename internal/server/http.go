package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/chatzot/facilitator/internal/api"
)

// NewRouter mounts the websocket endpoint and, when given, the admin API
func NewRouter(hub *Hub, admin *api.Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", hub.ServeWS)
	if admin != nil {
		admin.Register(r)
	}
	return r
}

// HTTPServer serves the websocket endpoint and the admin API
type HTTPServer struct {
	server *http.Server
	logger hclog.Logger
}

// NewHTTPServer creates a server listening on addr
func NewHTTPServer(addr string, handler http.Handler, logger hclog.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting up to the context deadline
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
