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

	"cati-platform/internal/audit"
	"cati-platform/internal/auth"
	"cati-platform/internal/calls"
	"cati-platform/internal/config"
	"cati-platform/internal/httpapi"
	"cati-platform/internal/interview"
	"cati-platform/internal/queue"
	"cati-platform/internal/review"
	"cati-platform/internal/telephony"
	"cati-platform/pkg/logger"
	"cati-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Wire stores and services.
	store := queue.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	queueSvc := queue.NewService(store, auditSvc)
	initializer := queue.NewInitializer(store)

	callRecords := calls.NewPostgresRepo(db)
	provider := telephony.NewExotelProvider(cfg.Telephony)
	orchestrator := calls.NewOrchestrator(store, callRecords, provider, auditSvc, rdb, calls.OrchestratorConfig{
		RingSeconds:    cfg.Telephony.RingSeconds,
		RequestTimeout: cfg.Telephony.RequestTimeout,
		MaxInFlight:    cfg.Rules.MaxInFlightCalls,
	})

	responses := interview.NewPostgresResponseRepo(db)
	sets := interview.NewPostgresSetRecordRepo(db)
	surveys := interview.NewPostgresSurveyRepo(db)
	evaluator := interview.NewEvaluator(responses, surveys, cfg.Rules.MinInterviewSeconds)
	for _, r := range cfg.Rules.DuplicateContactRules {
		evaluator.EnrollDuplicateRule(r.SurveyID, interview.QuestionSelector{
			ExactText: r.QuestionText,
			Tag:       r.QuestionTag,
			Pattern:   r.QuestionPattern,
		})
	}
	processor := interview.NewProcessor(store, responses, sets, surveys, callRecords, evaluator, review.NewRedisIntake(rdb), auditSvc)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:         authManager,
		Queue:        queueSvc,
		Initializer:  initializer,
		Orchestrator: orchestrator,
		Processor:    processor,
		DB:           db,
		RDB:          rdb,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
