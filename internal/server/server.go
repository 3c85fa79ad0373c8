package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"

	"mailcrew/internal/approval"
	"mailcrew/internal/config"
	"mailcrew/internal/logging"
	"mailcrew/internal/observability"
	"mailcrew/internal/session"
)

const messageDedupCacheSize = 2048

// Runner processes one inbound email. Satisfied by *session.Processor;
// tests inject spies.
type Runner interface {
	Process(ctx context.Context, email session.EmailPayload)
}

// Server exposes the webhook and approval endpoints.
type Server struct {
	cfg        config.RuntimeConfig
	runner     Runner
	store      *approval.PendingStore
	metrics    *observability.MetricsCollector
	logger     logging.Logger
	engine     *gin.Engine
	httpServer *http.Server
	dedupCache *lru.Cache[string, time.Time]
	now        func() time.Time

	// dispatch launches a run; overridable so tests can run synchronously.
	dispatch func(email session.EmailPayload)
}

// New constructs the HTTP server.
func New(cfg config.RuntimeConfig, runner Runner, store *approval.PendingStore, metrics *observability.MetricsCollector, logger logging.Logger) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server requires a session runner")
	}
	if store == nil {
		return nil, fmt.Errorf("server requires a pending approval store")
	}
	logger = logging.OrNop(logger)

	dedupCache, err := lru.New[string, time.Time](messageDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("webhook deduper init: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	s := &Server{
		cfg:        cfg,
		runner:     runner,
		store:      store,
		metrics:    metrics,
		logger:     logger,
		engine:     engine,
		dedupCache: dedupCache,
		now:        time.Now,
	}
	s.dispatch = func(email session.EmailPayload) {
		// Detached from the webhook request: approval waits can take
		// hours and must never block webhook acceptance.
		go s.runner.Process(context.Background(), email)
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.POST("/api/v1/webhook/email", s.handleEmailWebhook)
	s.engine.GET("/api/v1/approvals/:id", s.handleGetApproval)
	s.engine.POST("/api/v1/approvals/:id/decision", s.handleDecision)
	if s.metrics != nil && s.cfg.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	s.logger.Info("Server listening on :%s", s.cfg.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight HTTP requests. Background runs keep going;
// they hold no server resources beyond the pending store.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
