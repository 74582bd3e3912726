package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/promptengine"
	"server/internal/providers/replicate"
	"server/internal/storage"
	"server/internal/usage"
)

// The worker periodically reconciles in-flight jobs against the provider.
// Webhooks handle the common case; this loop catches jobs whose webhook was
// lost or whose api process crashed mid-reconcile.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	var locker generation.Locker
	if redisClient != nil {
		defer redisClient.Close()
		locker = infra.NewRedisLocker(redisClient)
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	providerClient, err := replicate.NewClient(replicate.Options{
		APIToken:     cfg.ReplicateAPIToken,
		BaseURL:      cfg.ReplicateBaseURL,
		ModelVersion: cfg.ReplicateModelVersion,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init provider client")
	}

	promptCfg := promptengine.DefaultConfig()
	promptCfg.MaxChars = cfg.PromptMaxChars

	orchestrator := generation.NewOrchestrator(generation.Options{
		Jobs:          repo.NewJobRepository(dbpool),
		Renders:       repo.NewRenderRepository(dbpool),
		Ledger:        usage.NewLedger(repo.NewUsageRepository(dbpool), cfg.BillingLocation()),
		Plans:         usage.StaticPlans{Limits: cfg.PlanLimits, DefaultLimit: cfg.DefaultMonthlyLimit},
		Provider:      providerClient,
		Store:         store,
		Locker:        locker,
		PromptConfig:  promptCfg,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxVariants:   cfg.MaxVariants,
		PollGrace:     cfg.PollGrace,
		Logger:        logger,
	})

	logger.Info().Dur("interval", cfg.WorkerPollInterval).Msg("worker started")
	ticker := time.NewTicker(cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			os.Exit(0)
		case <-ticker.C:
			if err := orchestrator.ReconcileStale(ctx, cfg.WorkerBatchSize); err != nil {
				logger.Error().Err(err).Msg("stale reconcile pass failed")
			}
		}
	}
}
