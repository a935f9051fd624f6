// Package server exposes the query API over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dc-codes426/newsapi-ai/config"
	"github.com/dc-codes426/newsapi-ai/internal/agent"
	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/news"
	"github.com/dc-codes426/newsapi-ai/internal/session"
	"github.com/dc-codes426/newsapi-ai/internal/store"
	"github.com/dc-codes426/newsapi-ai/internal/telemetry"
)

// Server wires the HTTP layer to the orchestrator and session storage.
type Server struct {
	cfg     *config.Config
	echo    *echo.Echo
	logger  *log.Logger
	store   session.Store
	locks   *session.Locks
	orch    *agent.Orchestrator
	janitor *session.Janitor
}

// New builds a ready-to-run server from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := log.New(os.Stdout, "[HTTP] ", log.LstdFlags)

	sessions, err := openSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	client := news.NewClient(cfg.NewsAPI)
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	orchLogger := log.New(os.Stdout, "[ORCH] ", log.LstdFlags)
	orch := agent.NewOrchestrator(cfg.Agent, orchLogger, tele, provider, client, sessions)

	janitor, err := session.NewJanitor(sessions, cfg.Sessions.SweepCron, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   sessions,
		locks:   session.NewLocks(),
		orch:    orch,
		janitor: janitor,
	}
	s.echo = s.buildEcho()
	return s, nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/api/query", s.handleQuery)
	return e
}

// openSessionStore selects the session backend from configuration.
func openSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case "", "inmemory":
		return session.NewMemoryStore(cfg.Sessions.TTL), nil
	case "redis":
		return session.NewRedisStore(context.Background(),
			cfg.Sessions.Redis.Addr, cfg.Sessions.Redis.Password, cfg.Sessions.Redis.DB,
			cfg.Sessions.TTL)
	case "postgres":
		dsn, err := cfg.Sessions.Postgres.DSN()
		if err != nil {
			return nil, err
		}
		return store.NewWithDSN(context.Background(), dsn, cfg.Sessions.TTL)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Sessions.Backend)
	}
}

// Run starts the background sweeper and serves until the listener stops.
func (s *Server) Run() error {
	s.janitor.Start()
	addr := s.cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	return s.echo.Start(addr)
}

// Shutdown stops the sweeper, the listener and the session backend.
func (s *Server) Shutdown(ctx context.Context) error {
	s.janitor.Shutdown()
	err := s.echo.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}
