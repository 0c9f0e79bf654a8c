package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"manga-translate-pipeline/internal/config"
	pg "manga-translate-pipeline/internal/infra/db/postgres"
	"manga-translate-pipeline/internal/infra/gateway"
	"manga-translate-pipeline/internal/infra/importer"
	"manga-translate-pipeline/internal/infra/logging"
	"manga-translate-pipeline/internal/infra/metrics"
	"manga-translate-pipeline/internal/infra/queue"
	"manga-translate-pipeline/internal/infra/security"
	"manga-translate-pipeline/internal/infra/storage"
	"manga-translate-pipeline/internal/infra/web"
	"manga-translate-pipeline/internal/usecase"

	queueports "manga-translate-pipeline/internal/domain/ports/queue"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// ---- Encryption ----
	masterKey := cfg.Security.MasterKey
	if len(masterKey) != 32 {
		logger.Warn().Msg("security.master_key not set or not 32 bytes; falling back to dev key (INSECURE)")
		masterKey = "0123456789abcdef0123456789abcdef"
	}
	vault, err := security.NewEncryptionService(masterKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption init failed")
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	pageRepo := pg.NewPageRepo(pool)
	settingsRepo := pg.NewSettingsRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Storage ----
	artifacts := storage.NewFSArtifactStore(cfg.Storage.DataDir)

	// ---- Use cases ----
	resolver := usecase.NewConfigResolver(cfg.Pipeline.Defaults())
	settings := usecase.NewSettingsStore(settingsRepo, vault, resolver, cfg.Pipeline.OpenAIAPIKey)
	ctxBuilder := usecase.NewContextBuilder(pageRepo, artifacts)
	gw := gateway.NewOpenAIGateway(logger)

	pipeline, err := usecase.NewPipeline(jobRepo, pageRepo, settings, artifacts, gw, ctxBuilder, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline init failed")
	}

	// ---- Queue ----
	var q queueports.Queue
	switch cfg.Queue.Backend {
	case "redis":
		redisClient, err := queue.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient, pipeline, cfg.Queue.StageAConcurrency, cfg.Queue.StageBConcurrency, logger)
	default:
		q = queue.NewStagePool(pipeline, cfg.Queue.StageAConcurrency, cfg.Queue.StageBConcurrency, logger)
	}
	pipeline.AttachQueue(q)
	q.Start(ctx)
	defer q.Stop()

	// ---- HTTP ----
	imp := importer.New(pageRepo, artifacts, txManager)
	server := web.NewServer(jobRepo, pageRepo, artifacts, imp, pipeline, settings, vault, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
