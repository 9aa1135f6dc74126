package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-moderation/internal/audit"
	"incident-moderation/internal/auth"
	"incident-moderation/internal/config"
	"incident-moderation/internal/httpapi"
	"incident-moderation/internal/moderation"
	"incident-moderation/internal/reporting"
	"incident-moderation/pkg/logger"
	"incident-moderation/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	store := moderation.NewSQLStore(db, moderation.DialectPostgres)
	auditRepo := audit.NewSQLRepo(db)
	if err := store.Migrate(rootCtx); err != nil {
		log.Error("moderation migrate failed", "err", err)
		os.Exit(1)
	}
	if err := auditRepo.Migrate(rootCtx); err != nil {
		log.Error("audit migrate failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := moderation.NewEngine(store, audit.NewService(auditRepo))
	if rdb != nil {
		engine.Locker = moderation.NewRedisLocker(rdb, cfg.Moderation.LockTTL, cfg.Moderation.LockWait)
	} else {
		engine.Locker = moderation.NewLocalLocker()
	}
	log.Info("moderation locks", "backend", cfg.Moderation.LockBackend)
	engine.Metrics = moderation.NewMetrics(reg)

	h := httpapi.Handlers{
		Auth:         authManager,
		Engine:       engine,
		Reporting:    reporting.NewService(store),
		LoginEnabled: cfg.DevLoginEnabled(),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	// Route groups
	var lockRedis redis.UniversalClient
	if rdb != nil {
		lockRedis = rdb
	}
	registerPublicRoutes(r, db, lockRedis, reg) // health, metrics
	registerAuthRoutes(r, h)
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("shutdown complete")
}
