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

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/audit"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/dispatch"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/minutes"
	"voiceagent-platform/internal/reporting"
	"voiceagent-platform/internal/storage"
	"voiceagent-platform/internal/webhook"
	"voiceagent-platform/pkg/logger"
	"voiceagent-platform/pkg/utils"

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

	db, err := utils.OpenPostgresWithRetry(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{}, utils.PostgresRetryConfig{})
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

	// Services. The ledger is the hub: dispatch registers calls through it,
	// the webhook ingestor and the agent process push lifecycle events into
	// it, and it pushes accruals into minute accounting.
	agentSvc := agents.NewService(db)
	minuteSvc := minutes.NewService(db)

	callRepo := calls.NewSQLRepository(db)
	ledger := calls.NewLedger(callRepo, agentSvc, minuteSvc)

	rooms := dispatch.NewLiveKitRooms(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.Storage.S3Bucket, cfg.Storage.S3Region)
	dispatcher := dispatch.NewDispatcher(ledger, agentSvc, minuteSvc, rooms)

	reportSvc := reporting.NewService(reporting.NewLedgerRepo(callRepo, agentSvc))
	auditSvc := audit.NewService(audit.NewSQLRepo(db))

	// The artifact store is optional outside production: summaries and call
	// reads still work, only transcript fetches 404.
	var artifacts httpapi.TranscriptFetcher
	if cfg.Storage.S3Bucket != "" {
		store, err := storage.NewStore(rootCtx, storage.Config{
			Bucket: cfg.Storage.S3Bucket,
			Region: cfg.Storage.S3Region,
		})
		if err != nil {
			log.Error("artifact store init failed", "err", err)
			os.Exit(1)
		}
		artifacts = store
	}

	// Webhook dedup fast-path: Redis SETNX in front of the authoritative
	// database guards. Redis trouble means "proceed", never "drop".
	seen := func(ctx context.Context, key string) (bool, error) {
		return utils.MarkOnce(ctx, rdb, key, time.Hour)
	}
	ingestor := webhook.NewIngestor(ledger, seen)
	webhookHandler := webhook.NewHandler(ingestor, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)

	h := httpapi.Handlers{
		Auth:       authManager,
		Agents:     agentSvc,
		Minutes:    minuteSvc,
		Ledger:     ledger,
		Dispatch:   dispatcher,
		Reports:    reportSvc,
		Audit:      auditSvc,
		OwnedCalls: ownedCallsReader{repo: callRepo},
		Artifacts:  artifacts,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, webhookHandler, authManager, cfg.Service.Token, db)

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

// ownedCallsReader adapts the SQL repository's ownership-scoped listing to
// the shape the handlers want.
type ownedCallsReader struct {
	repo *calls.SQLRepository
}

func (o ownedCallsReader) ListCalls(ctx context.Context, ownerUserID string, from, to time.Time, agentID string) ([]calls.Record, error) {
	return o.repo.ListOwned(ctx, ownerUserID, calls.ListFilter{
		AgentID: agentID,
		From:    from,
		To:      to,
	})
}
