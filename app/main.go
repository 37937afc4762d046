package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/guideline-hub/app/api"
	"github.com/lysyi3m/guideline-hub/app/cfg"
	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/enrich"
	"github.com/lysyi3m/guideline-hub/app/ingest"
	"github.com/lysyi3m/guideline-hub/app/source"
	"github.com/lysyi3m/guideline-hub/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		return
	}

	logLevel := slog.LevelInfo
	if appConfig.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Guideline Hub", "version", appConfig.Version, "store", appConfig.Store)

	store, err := openStore(appConfig)
	if err != nil {
		slog.Error("Failed to open store", "store", appConfig.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if appConfig.SeedFile != "" {
		seedTask := tasks.NewImportSeedTask(appConfig.SeedFile, store)
		if err := seedTask.Execute(context.Background()); err != nil {
			slog.Error("Failed to import seed file", "path", appConfig.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	configCache := source.NewConfigCache(appConfig.SourcesDir, appConfig.MaxItems)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "total", configCache.GetConfigCount(), "enabled", len(configCache.GetEnabledConfigs()), "dir", appConfig.SourcesDir)

	fetcher := source.NewFetcher(&http.Client{}, appConfig.UserAgent)
	registry := source.NewDefaultRegistry(fetcher)
	extractor := source.NewContentExtractor(fetcher, source.DefaultSnippetChars)

	var provider enrich.Provider
	if appConfig.AIActive() {
		provider = enrich.NewOpenAIProvider(enrich.OpenAIConfig{
			APIKey:            appConfig.OpenAIAPIKey,
			Model:             appConfig.OpenAIModel,
			BaseURL:           appConfig.OpenAIBaseURL,
			RequestsPerMinute: appConfig.AIRequestsPerMinute,
		})
		slog.Info("AI enrichment enabled", "model", appConfig.OpenAIModel)
	} else {
		slog.Info("AI enrichment disabled, using fallback summaries")
	}
	enricher := enrich.NewEnricher(provider, time.Duration(appConfig.AITimeout)*time.Second, appConfig.SummaryBullets)

	orchestrator := ingest.NewOrchestrator(configCache, registry, enricher, extractor, store, store, ingest.Options{
		FetchConcurrency:  appConfig.FetchConcurrency,
		EnrichConcurrency: appConfig.EnrichConcurrency,
		ReenrichAfter:     appConfig.ReenrichAfter(),
	})

	scheduler := tasks.NewScheduler(orchestrator, store, appConfig.Interval(), appConfig.SkipInitialRun)

	if appConfig.Once {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary := scheduler.RunOnce(ctx, "once")
		if !summary.Succeeded() {
			slog.Error("Ingestion cycle failed", "run_id", summary.RunID, "status", summary.Status, "errors", len(summary.SourceErrors))
			store.Close()
			os.Exit(1)
		}
		return
	}

	scheduler.Start()
	defer scheduler.Stop()

	location := time.Local
	apiHandler := api.NewHandler(store, store, configCache, scheduler, location)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey, appConfig.Version)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Guideline Hub shutdown complete")
}

func openStore(appConfig *cfg.Cfg) (database.Store, error) {
	switch appConfig.Store {
	case cfg.StoreMongo:
		store, err := database.OpenMongoStore(context.Background(), appConfig.MongoURI, appConfig.MongoDatabase)
		if err != nil {
			return nil, err
		}
		slog.Info("Database ready", "database", appConfig.MongoDatabase)
		return store, nil
	default:
		store, version, err := database.OpenSQLiteStore(appConfig.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Database ready", "path", appConfig.DBPath, "schema_version", version)
		return store, nil
	}
}
