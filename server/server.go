// Package server owns and wires together every bridge component: the
// session registry, rendezvous queue, permission engine, task executor,
// notifier, realtime hub, bot adapter, image store, and transcript watcher.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/agentbridge/bridge/bot"
	"github.com/agentbridge/bridge/config"
	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/executor"
	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/notifications"
	"github.com/agentbridge/bridge/permission"
	"github.com/agentbridge/bridge/realtime"
	"github.com/agentbridge/bridge/registry"
	"github.com/agentbridge/bridge/rendezvous"
	"github.com/agentbridge/bridge/storage"
	"github.com/agentbridge/bridge/watcher"
)

// Server owns and coordinates every bridge component.
type Server struct {
	cfg *config.Config

	database *db.DB
	notif    *notifications.Service
	reg      *registry.Registry
	queue    *rendezvous.Queue
	perm     *permission.Engine
	exec     *executor.Executor
	hub      *realtime.Hub
	images   storage.Store
	watch    *watcher.Watcher
	botAdapter bot.Adapter

	cron *cron.Cron

	// shutdownCtx is cancelled when the server begins shutting down and is
	// exposed through ShutdownContext; the realtime socket uses its own
	// request context instead.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	router *gin.Engine
	http   *http.Server
}

// New creates a server with every bridge component initialized and wired,
// but does not yet start accepting connections or running background jobs.
func New(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	log.Info().Msg("initializing database")
	database, err := db.Open(db.Config{
		Path:            cfg.DatabasePath,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 0,
		LogQueries:      cfg.DBLogQueries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.database = database

	log.Info().Msg("initializing notifications service")
	s.notif = notifications.NewService()

	log.Info().Msg("initializing session registry")
	s.reg = registry.New(s.notif)

	log.Info().Msg("initializing rendezvous queue")
	s.queue = rendezvous.New()

	log.Info().Msg("initializing permission engine")
	s.perm = permission.New(s.queue, s.notif, cfg.PermissionTimeout)

	log.Info().Msg("initializing task executor")
	s.exec = executor.New(cfg, s.reg, s.notif)

	log.Info().Msg("initializing realtime hub")
	s.hub = realtime.NewHub(s.notif, s.queue)

	s.images = storage.NewLocalStore(cfg.AppDataDir, cfg.WebUIURL+"/images")

	s.watch = watcher.New(s.notif)

	if cfg.BotGatewayURL != "" {
		gw, err := bot.DialGateway(ctx, cfg.BotGatewayURL, map[string]string{"X-Bridge-Secret": cfg.BridgeSecret})
		if err != nil {
			log.Warn().Err(err).Msg("bot gateway unreachable at startup, continuing without it")
		} else {
			s.botAdapter = gw
			log.Info().Msg("bot gateway connected")
		}
	}

	s.cron = cron.New()

	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates the Gin engine and applies ambient middleware. Route
// registration itself (hook group, UI group) is done by calling code
// (main.go), mirroring the teacher's split to avoid an import cycle between
// server and api.
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	if s.cfg.IsDevelopment() {
		s.router.Use(s.corsMiddleware())
	}
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	// Gzip everything except the websocket upgrade, which must stay
	// unbuffered for the protocol switch.
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/ws",
	})))

	s.router.SetTrustedProxies(nil)

	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && origin == s.cfg.WebUIURL {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Bridge-Secret, X-API-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// Start starts background jobs and the HTTP server; blocks until the HTTP
// server stops.
func (s *Server) Start() error {
	log.Info().Msg("starting server components")

	// Janitor: prune resolved queue/permission rows older than a day.
	_, err := s.cron.AddFunc("@hourly", func() {
		cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()
		queueRows, permRows, err := db.PruneStaleRecords(cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("janitor: prune failed")
			return
		}
		if queueRows+permRows > 0 {
			log.Info().Int64("queue_rows", queueRows).Int64("permission_rows", permRows).Msg("janitor: pruned stale records")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	s.cron.Start()

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	log.Info().Str("addr", s.http.Addr).Str("env", s.cfg.Env).Msg("HTTP server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops every component.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	s.shutdownCancel()
	time.Sleep(100 * time.Millisecond)

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.watch.Close()
	if s.botAdapter != nil {
		s.botAdapter.Close()
	}
	s.notif.Shutdown()

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for the API layer.
func (s *Server) DB() *db.DB                         { return s.database }
func (s *Server) Notifications() *notifications.Service { return s.notif }
func (s *Server) Registry() *registry.Registry       { return s.reg }
func (s *Server) Rendezvous() *rendezvous.Queue       { return s.queue }
func (s *Server) Permissions() *permission.Engine     { return s.perm }
func (s *Server) Executor() *executor.Executor        { return s.exec }
func (s *Server) Hub() *realtime.Hub                  { return s.hub }
func (s *Server) Images() storage.Store               { return s.images }
func (s *Server) Watcher() *watcher.Watcher           { return s.watch }
func (s *Server) Bot() bot.Adapter                    { return s.botAdapter }
func (s *Server) Config() *config.Config              { return s.cfg }
func (s *Server) Router() *gin.Engine                 { return s.router }
func (s *Server) ShutdownContext() context.Context    { return s.shutdownCtx }
