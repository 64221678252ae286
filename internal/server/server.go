/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/api"
	"github.com/friendsincode/confplanner/internal/assistant"
	"github.com/friendsincode/confplanner/internal/audit"
	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/cache"
	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/config"
	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/eventbus"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/leadership"
	"github.com/friendsincode/confplanner/internal/logbuffer"
	"github.com/friendsincode/confplanner/internal/planner"
	"github.com/friendsincode/confplanner/internal/storage"
	"github.com/friendsincode/confplanner/internal/telemetry"
	"github.com/friendsincode/confplanner/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db       *gorm.DB
	cache    *cache.Cache
	bus      *events.Bus
	bridge   *eventbus.Bridge
	catalog  *catalog.Service
	auditSvc *audit.Service
	avatars  storage.ObjectStore
	logBuf   *logbuffer.Buffer
	api      *api.API
	tracer   *telemetry.TracerProvider
	election *leadership.Election
	jobs     *cron.Cron

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
		logBuf: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	if err := srv.startBackgroundWorkers(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the events websocket; the middleware
		// timeout covers ordinary routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Frame-Options", "DENY")
		// JSON and images only; nothing here is meant to run in a browser.
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one zerolog line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error()
			case r.URL.Path == "/metrics" || r.URL.Path == "/healthz":
				evt = logger.Debug()
			}
			evt.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}

func (s *Server) initDependencies() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tp, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "confplanner",
		ServiceVersion: version.Version,
		Environment:    s.cfg.Environment,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tp
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		cacheCfg.L1Size = s.cfg.CacheL1Size
		entityCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = entityCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	if err := s.initEventBridge(ctx); err != nil {
		return err
	}

	if s.cfg.LeaderElection {
		electionCfg := leadership.DefaultConfig()
		electionCfg.RedisAddr = s.cfg.RedisAddr
		electionCfg.RedisPassword = s.cfg.RedisPassword
		electionCfg.RedisDB = s.cfg.RedisDB
		electionCfg.InstanceID = s.cfg.InstanceID
		election, err := leadership.NewElection(ctx, electionCfg, s.logger)
		if err != nil {
			return fmt.Errorf("init leader election: %w", err)
		}
		s.election = election
		s.DeferClose(election.Stop)
	}

	avatars, err := storage.New(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("init avatar storage: %w", err)
	}
	if err := avatars.CheckAccess(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("avatar storage not reachable, uploads will fail until it is")
	}
	s.avatars = avatars

	s.catalog = catalog.NewService(database, s.cache, s.logger)
	plan := planner.NewService(database, s.catalog, s.bus, s.logger)
	authSvc := auth.NewService(database, s.bus, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.api = api.New(database, api.Options{
		JWTSecret:      []byte(s.cfg.JWTSigningKey),
		SessionTTL:     s.cfg.SessionTTL,
		CookieSecure:   s.cfg.CookieSecure,
		ConferenceName: s.cfg.ConferenceName,
		Timezone:       s.cfg.ConferenceTimezone,
		BaseURL:        s.cfg.BaseURL,
		MaxAvatarBytes: s.cfg.MaxUploadSizeBytes(),
	}, authSvc, s.catalog, plan, s.auditSvc, s.bus, s.logger)
	s.api.SetAvatarStore(avatars)
	s.api.SetLogBuffer(s.logBuf)

	if s.cfg.AssistantEnabled {
		svc, err := s.newAssistant(ctx, plan)
		if err != nil {
			// Chat answers 503 until the next restart; the rest of the API is unaffected.
			s.logger.Error().Err(err).Msg("assistant initialization failed")
		} else {
			s.api.SetAssistant(svc)
		}
	}

	return nil
}

// initEventBridge relays bus events to other instances when a shared
// transport is configured.
func (s *Server) initEventBridge(ctx context.Context) error {
	var transport eventbus.Transport
	switch s.cfg.EventBusBackend {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		t, err := eventbus.NewRedisTransport(ctx, redisCfg, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis event bus: %w", err)
		}
		transport = t
	case config.EventBusNATS:
		t, err := eventbus.NewNATSTransport(ctx, s.cfg.NATSURL, "confplanner-"+s.cfg.InstanceID, s.logger)
		if err != nil {
			return fmt.Errorf("connect nats event bus: %w", err)
		}
		transport = t
	default:
		return nil
	}

	s.bridge = eventbus.NewBridge(s.bus, transport, s.cfg.InstanceID, s.logger)
	s.DeferClose(func() error { return s.bridge.Close() })
	return nil
}

func (s *Server) newAssistant(ctx context.Context, plan *planner.Service) (*assistant.Service, error) {
	router, err := assistant.NewBedrockModel(ctx, assistant.BedrockConfig{
		Region:    s.cfg.BedrockRegion,
		ModelID:   s.cfg.AssistantRouterModel,
		MaxTokens: s.cfg.AssistantMaxTokens,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	agent, err := assistant.NewBedrockModel(ctx, assistant.BedrockConfig{
		Region:    s.cfg.BedrockRegion,
		ModelID:   s.cfg.AssistantAgentModel,
		MaxTokens: s.cfg.AssistantMaxTokens,
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("router_model", s.cfg.AssistantRouterModel).
		Str("agent_model", s.cfg.AssistantAgentModel).
		Msg("assistant enabled")

	return assistant.New(assistant.Models{Router: router, Search: agent}, s.catalog, plan, assistant.Options{
		Conference: assistant.Conference{Name: s.cfg.ConferenceName, Location: s.cfg.ConferenceVenue},
		Location:   s.cfg.Location(),
		MaxSteps:   s.cfg.AssistantMaxSteps,
		MaxTokens:  s.cfg.AssistantMaxTokens,
	}, s.logger), nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	// Locally stored avatars; S3 avatars are served by the bucket.
	if fs, ok := s.avatars.(*storage.FilesystemStore); ok {
		files := http.StripPrefix(storage.AvatarURLPrefix, http.FileServer(http.Dir(fs.Root())))
		s.router.Handle(storage.AvatarURLPrefix+"*", files)
	}

	s.api.Routes(s.router)
}
