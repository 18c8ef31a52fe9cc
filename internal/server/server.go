package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/checkpoint"
	"github.com/mohammad-safakhou/hously/internal/geo"
	"github.com/mohammad-safakhou/hously/internal/knowledge"
	"github.com/mohammad-safakhou/hously/internal/llm"
	"github.com/mohammad-safakhou/hously/internal/tools"
	"github.com/mohammad-safakhou/hously/internal/turn"
)

// Run wires every component together and serves until the process exits.
func Run(cfg *config.Config) error {
	e := newEcho()

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/welcome", Welcome)

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	checkpoints, err := checkpoint.NewPostgres(ctx, dsn, nil)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	index, err := knowledge.Open(cfg.Retrieval, provider, cfg.LLM.Embedding.Model)
	if err != nil {
		return fmt.Errorf("knowledge index: %w", err)
	}
	parents, err := knowledge.NewParentStore(cfg.Retrieval.ParentStorePath)
	if err != nil {
		return fmt.Errorf("parent store: %w", err)
	}

	geoClient := geo.NewClient(cfg.Maps)

	registry, err := tools.NewRegistry(
		tools.NewRetrieveTool(index),
		tools.NewExpandTool(parents, cfg.Retrieval.MaxParentRetrieval),
		tools.NewCommuteTool(geoClient),
		tools.NewDirectionsTool(geoClient),
		tools.NewNearbyTool(geoClient),
	)
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	turnCfg := cfg.Turn.Normalize()
	route := cfg.LLM.Routing
	engineLogger := log.New(log.Writer(), "[TURN] ", log.LstdFlags)
	branch := turn.NewBranch(provider, turnCfg, route, registry.All(), nil)
	engine := turn.NewEngine(
		turn.NewCompressor(provider, turnCfg, route, nil),
		turn.NewAnalyzer(provider, turnCfg, route, nil),
		turn.NewDispatcher(branch, turnCfg, turnCfg.MaxSubQuestions, nil),
		turn.NewAggregator(provider, route, nil),
		checkpoints,
		turnCfg,
		rdb,
		engineLogger,
	)

	secret := []byte(cfg.Server.JWTSecret)
	if cfg.Server.AuthRequired && len(secret) == 0 {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	api := e.Group("/api")
	if cfg.Server.AuthRequired {
		auth := &AuthHandler{Users: &PostgresUsers{DB: checkpoints.DB()}, Secret: secret}
		auth.Register(api.Group("/auth"))
	}

	th := &TurnsHandler{Engine: engine}
	th.Register(api.Group("/threads"), secret, cfg.Server.AuthRequired)

	if cfg.Server.RetentionDays > 0 {
		sched := &Scheduler{
			Checkpoints: checkpoints,
			Rdb:         rdb,
			Cron:        cfg.Server.RetentionCron,
			Retention:   time.Duration(cfg.Server.RetentionDays) * 24 * time.Hour,
			Stop:        make(chan struct{}),
		}
		sched.Start()
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	return e.Start(addr)
}

// newEcho builds the echo instance with recovery, CORS and the uniform JSON
// error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
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
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))
	return e
}
