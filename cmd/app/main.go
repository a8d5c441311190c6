package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discord-render-bot/internal/application"
	"discord-render-bot/internal/config"
	civitaiAdapter "discord-render-bot/internal/infra/adapters/civitai"
	discordAdapter "discord-render-bot/internal/infra/adapters/discord"
	rendererAdapter "discord-render-bot/internal/infra/adapters/renderer"
	"discord-render-bot/internal/infra/catalog"
	"discord-render-bot/internal/infra/db/sqlite"
	"discord-render-bot/internal/infra/guard"
	"discord-render-bot/internal/infra/logging"
	metadataCache "discord-render-bot/internal/infra/metadata"
	"discord-render-bot/internal/infra/metrics"
	"discord-render-bot/internal/infra/queue"
	"discord-render-bot/internal/infra/sched"
	"discord-render-bot/internal/infra/session"
	"discord-render-bot/internal/infra/web"
	"discord-render-bot/internal/infra/workflow"
	"discord-render-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log)

	// ---- Store ----
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	jobRepo := sqlite.NewJobRepo(db)
	upscaleRepo := sqlite.NewUpscaleJobRepo(db)
	bannedRepo := sqlite.NewBannedWordRepo(db)

	// ---- Renderer ----
	renderer := rendererAdapter.NewClient(rendererAdapter.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})
	if !renderer.Ping(ctx) {
		logger.Warn().Str("base_url", cfg.Backend.BaseURL).Msg("renderer not reachable at boot")
	}

	// ---- Node catalog (frozen for the process lifetime) ----
	cat, err := catalog.Resolve(ctx, renderer, logging.Component(logger, "Catalog"))
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve node catalog")
	}

	// ---- Templates ----
	binder := workflow.NewBinder(cfg.WorkflowDir, cfg.Upscale.Workflow)
	if err := binder.ValidateBase(); err != nil {
		logger.Fatal().Err(err).Msg("base template invalid")
	}
	if err := binder.ValidateUpscale(); err != nil {
		logger.Fatal().Err(err).Msg("upscale template invalid")
	}

	// ---- In-process state ----
	drafts := session.NewDraftStore()
	contentGuard := guard.New(bannedRepo, logging.Component(logger, "Guard"))
	civitai := civitaiAdapter.NewClient(civitaiAdapter.Options{APIKey: cfg.CivitaiAPIKey})
	triggerWords := metadataCache.NewCache(renderer, civitai, logging.Component(logger, "Metadata"))

	// ---- Discord (session first; the notifier shares it with the runner) ----
	purgeWorker := sched.NewPurgeWorker(db, cfg.Purge.MaxAge, cfg.Purge.Interval, logger)

	bot, err := discordAdapter.NewBot(&cfg.Bot, nil, cfg.Upscale.Enabled, cfg.DefaultNegativePrompt, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("discord session")
	}
	notifier := discordAdapter.NewNotifier(bot.Session(), cfg.Bot.AppID, logger)

	// ---- Queue & runner ----
	runner := queue.NewRunner(jobRepo, upscaleRepo, binder, renderer, notifier,
		cfg.Backend.Timeout, cfg.Upscale.Enabled, logger)

	// ---- Use cases ----
	generationUC := usecase.NewGenerationUseCase(jobRepo, drafts, contentGuard, binder, runner, logger)
	upscaleUC := usecase.NewUpscaleUseCase(jobRepo, upscaleRepo, renderer, runner, cfg.Upscale.Model, logger)
	moderationUC := usecase.NewModerationUseCase(bannedRepo, contentGuard, logger)

	facade := application.NewBotFacade(generationUC, upscaleUC, moderationUC, drafts, cat, triggerWords, purgeWorker)
	bot.SetFacade(facade)

	// ---- Metrics / ops ----
	metrics.MustRegister()
	var ops *web.Server
	if cfg.OpsPort > 0 {
		ops = web.NewServer(cfg.OpsPort, logger)
		ops.Start()
	}

	// ---- Start ----
	if err := bot.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start discord bot")
	}
	if err := runner.RecoverQueued(ctx); err != nil {
		logger.Warn().Err(err).Msg("recovery sweep failed")
	}
	go func() { _ = runner.Run(ctx) }()
	go func() { _ = purgeWorker.Run(ctx) }()

	logger.Info().Msg("bot up")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	bot.Stop()
	if ops != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = ops.Shutdown(shutdownCtx)
		done()
	}
}
