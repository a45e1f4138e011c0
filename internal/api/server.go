// Package api is the HTTP control surface of the engine: campaign
// lifecycle operations, the provider webhook endpoint, and suppression
// lookups. Handlers stay thin; all behavior lives in the scheduler, the
// event processor, and the stores.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/suppression"
)

// Server hosts the engine's HTTP API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// Handlers carries the dependencies the endpoints need.
type Handlers struct {
	store     *queue.Store
	ledger    *suppression.Ledger
	scheduler *scheduler.Scheduler
	stager    *scheduler.Stager
	processor *events.Processor
}

// NewHandlers wires the handler set.
func NewHandlers(store *queue.Store, ledger *suppression.Ledger, sched *scheduler.Scheduler, stager *scheduler.Stager, processor *events.Processor) *Handlers {
	return &Handlers{
		store:     store,
		ledger:    ledger,
		scheduler: sched,
		stager:    stager,
		processor: processor,
	}
}

// NewServer builds the HTTP server with routing and middleware.
func NewServer(cfg config.ServerConfig, h *Handlers) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h.Routes(r)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		handlers: h,
	}
}

// Routes mounts every endpoint on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{campaignID}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Get("/stats", h.CampaignStats)
				r.Post("/stage", h.StageCampaign)
				r.Post("/launch", h.LaunchCampaign)
				r.Post("/retry-failed", h.RetryFailed)
				r.Post("/pause", h.PauseCampaign)
				r.Post("/resume", h.ResumeCampaign)
			})
		})

		r.Get("/suppression/{email}", h.SuppressionStatus)
		r.Get("/slots", h.ListSlots)

		r.Post("/webhooks/sparkpost", h.SparkPostWebhook)
	})
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	logger.Info("api server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
