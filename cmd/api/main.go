package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/generation"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/promptengine"
	"server/internal/providers/replicate"
	"server/internal/storage"
	"server/internal/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := infra.MigrateUp(cfg.DatabaseURL, &logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx := context.Background()
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

	jobs := repo.NewJobRepository(dbpool)
	renders := repo.NewRenderRepository(dbpool)
	ledger := usage.NewLedger(repo.NewUsageRepository(dbpool), cfg.BillingLocation())
	plans := usage.StaticPlans{Limits: cfg.PlanLimits, DefaultLimit: cfg.DefaultMonthlyLimit}

	promptCfg := promptengine.DefaultConfig()
	promptCfg.MaxChars = cfg.PromptMaxChars

	orchestrator := generation.NewOrchestrator(generation.Options{
		Jobs:          jobs,
		Renders:       renders,
		Ledger:        ledger,
		Plans:         plans,
		Provider:      providerClient,
		Store:         store,
		Locker:        locker,
		PromptConfig:  promptCfg,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxVariants:   cfg.MaxVariants,
		PollGrace:     cfg.PollGrace,
		Logger:        logger,
	})

	app := &handlers.App{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orchestrator,
		Renders:      renders,
		Ledger:       ledger,
		Plans:        plans,
		Store:        store,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
