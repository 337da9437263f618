// Package server provides the HTTP server for the Legion API (spec §6's
// "v2 surface"): channel and agent REST endpoints plus a push stream
// mirroring the event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gemini-legion/legion/internal/agentruntime"
	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/memory"
	"github.com/gemini-legion/legion/internal/orchestrator"
	"github.com/gemini-legion/legion/internal/persona"
	"github.com/gemini-legion/legion/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server over the Legion core components.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	bus      event.Bus
	channels *channel.Service
	personas *persona.Engine
	memory   *memory.Engine
	invoker  *agentruntime.Invoker
	orch     *orchestrator.Orchestrator
}

// New creates a new Server instance over its collaborators. It does not
// start the Orchestrator; callers that want turn dispatch call orch.Start
// separately (so tests can wire the same Server without live agents).
func New(cfg *Config, bus event.Bus, channels *channel.Service, personas *persona.Engine, mem *memory.Engine, invoker *agentruntime.Invoker, orch *orchestrator.Orchestrator) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		router:   r,
		bus:      bus,
		channels: channels,
		personas: personas,
		memory:   mem,
		invoker:  invoker,
		orch:     orch,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// errorStatus maps a handler error to an HTTP status via legionerr's Kind,
// defaulting to 500 for errors with no recognized Kind.
func errorStatus(err error) int {
	if kind, ok := legionerr.As(err); ok {
		return kind.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// senderKindFor resolves the SenderKind a /channels/{id}/messages POST
// should record: a post that names a sender is recorded as a user message,
// and one with an empty sender as a system message.
func senderKindFor(senderID string) types.SenderKind {
	if senderID == "" {
		return types.SenderSystem
	}
	return types.SenderUser
}
