// Package statusserver exposes the running assistant over HTTP.
//
// Routes:
//
//	GET  /healthz          aggregated health, 503 when a required module is down
//	GET  /status           health plus the status of every module
//	GET  /events?limit=N   recently published events, oldest first
//	POST /utterances       inject {"text": "...", "confidence": 0.9} as recognized speech
//	GET  /ws               live event stream; messages sent by the client are utterances
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/sage"
)

// ModuleName is the unique identifier for the status server module.
const ModuleName = "statusserver"

// StatusServer is the HTTP front end.
type StatusServer struct {
	cfg    StatusServerConfig
	app    sage.Application
	logger sage.Logger
	router chi.Router
	hub    *hub

	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates the status server module.
func New() *StatusServer {
	return &StatusServer{hub: newHub()}
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (s *StatusServer) Name() string { return ModuleName }

// Init loads the configuration and builds the routes.
func (s *StatusServer) Init(ctx context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &s.cfg); err != nil {
		return fmt.Errorf("statusserver config: %w", err)
	}
	s.app = app
	s.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Get("/events", s.events)
	r.Post("/utterances", s.utterance)
	r.Get("/ws", s.serveWS)
	s.router = r
	return nil
}

// Handler returns the routes, for embedding and tests.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address.
func (s *StatusServer) Start(context.Context) error {
	if s.server != nil {
		return ErrServerStarted
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("Starting status server", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *StatusServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and disconnects websocket clients.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
	if s.server == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(sctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	<-s.done
	return nil
}

// Status implements sage.StatusReporter.
func (s *StatusServer) Status() map[string]any {
	clients, dropped := s.hub.stats()
	return map[string]any{
		"address":   s.Addr(),
		"clients":   clients,
		"wsDropped": dropped,
	}
}
