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

	"voice-dialer/internal/audit"
	"voice-dialer/internal/auth"
	"voice-dialer/internal/batches"
	"voice-dialer/internal/calls"
	"voice-dialer/internal/config"
	"voice-dialer/internal/database"
	"voice-dialer/internal/httpapi"
	"voice-dialer/internal/metrics"
	"voice-dialer/internal/profiles"
	"voice-dialer/internal/telephony"
	"voice-dialer/pkg/logger"
	"voice-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// inflightKey is the Redis counter shared by every dispatcher process.
const inflightKey = "callbatch:inflight"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFile(); err != nil {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, logger.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := httpapi.RegisterValidators(); err != nil {
		log.Error("validator init failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(rootCtx, db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gateway := telephony.NewVapiProvider(cfg.Vapi, m.ObserveGateway)

	// Services
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	profilesSvc := profiles.NewService(profiles.NewPostgresRepo(db))
	callsSvc := calls.NewService(calls.NewPostgresRepo(db), gateway)

	store := batches.NewPostgresStore(db)
	queue := batches.NewRedisQueue(rdb, cfg.Batch.QueueKey)
	policy := batches.Policy{Pacing: cfg.Batch.Pacing, MaxItems: cfg.Batch.MaxItems}
	batchesSvc := batches.NewService(store, queue, policy, auditSvc, m)

	slotTTL := 2 * time.Minute
	limiter, err := utils.NewConcurrencyCap(rdb, inflightKey, cfg.Batch.InflightLimit, slotTTL)
	if err != nil {
		log.Error("batch limiter init failed", "err", err)
		os.Exit(1)
	}
	orchestrator := batches.NewOrchestrator(store, batches.NewProcessor(gateway, callsSvc, store), policy, auditSvc, m)
	dispatcher := batches.NewDispatcher(queue, orchestrator, store, limiter, m, batches.DispatcherConfig{
		Workers:       cfg.Batch.Workers,
		SweepInterval: cfg.Batch.SweepInterval,
		SlotTTL:       slotTTL,
	}, log)
	if err := dispatcher.Start(rootCtx); err != nil {
		log.Error("batch dispatcher start failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, routeDeps{
		auth:          authManager,
		sessionCookie: cfg.Auth.SessionCookie,
		webhookSecret: cfg.Vapi.WebhookSecret,
		metrics:       m,
		ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		handlers: httpapi.Handlers{
			Profiles:   profilesSvc,
			Calls:      callsSvc,
			Batches:    batchesSvc,
			Dispatcher: dispatcher,
			Audit:      auditSvc,
		},
	})

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
	// Interrupted batches stay queued and resume on the next start.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("batch dispatcher stop failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
