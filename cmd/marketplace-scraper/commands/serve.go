package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/api"
	"github.com/maltedev/marketplace-scraper/internal/database"
	"github.com/maltedev/marketplace-scraper/internal/events"
	"github.com/maltedev/marketplace-scraper/internal/export"
	"github.com/maltedev/marketplace-scraper/internal/jobs"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job workers",
	Long: `Serve the job API. Search jobs are queued in memory and run by a pool
of workers sharing one browser.

With DB_ENABLED the listings of every finished job are upserted into
PostgreSQL together with a LISTINGS_SCRAPED outbox event. With
REDIS_ENABLED a relay publishes those events to a Redis stream.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "listen port (default SERVER_PORT)")
	serveCmd.Flags().Int("workers", 0, "concurrent jobs (default SCRAPER_WORKERS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Scraper.Workers = workers
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		logError("%v", err)
		return err
	}

	index, err := openIndex(cfg.Export.IndexFile)
	if err != nil {
		logError("%v", err)
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		return err
	}

	runner, b, err := newRunner(cfg, log)
	if err != nil {
		log.Error("failed to initialize browser", "error", err)
		return err
	}
	defer b.Close()

	managerOpts := []jobs.Option{
		jobs.WithExporter(newExporter(cfg, cfg.Export.OutputDir, log)),
	}
	if index != nil {
		managerOpts = append(managerOpts, jobs.WithListingIndex(index))
	}

	var handlerOpts []api.Option
	if db != nil {
		defer db.Close()

		outbox := database.NewOutboxRepository(db)
		managerOpts = append(managerOpts, jobs.WithPublisher(events.NewPublisher(db, log)))
		handlerOpts = append(handlerOpts, api.WithListingCounter(db), api.WithOutboxCounter(outbox))

		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Error("failed to connect to Redis", "error", err)
				return fmt.Errorf("failed to connect to redis: %w", err)
			}

			relay := database.NewRelay(outbox, redisClient, log, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
				BatchSize:    cfg.Redis.BatchSize,
				StreamMaxLen: cfg.Redis.StreamMaxLen,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	manager := jobs.NewManager(runner, jobs.Options{
		Workers:      cfg.Scraper.Workers,
		Marketplaces: cfg.Scraper.Marketplaces,
		Country:      cfg.Scraper.Country,
		MaxPages:     cfg.Scraper.MaxPages,
		ExportFormat: format,
	}, log, managerOpts...)

	workersDone := make(chan struct{})
	go func() {
		manager.Start(ctx)
		close(workersDone)
	}()

	handlers := api.NewHandlers(manager, log, handlerOpts...)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server.AllowedOrigins, cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "addr", server.Addr, "workers", cfg.Scraper.Workers)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		cancel()
		<-workersDone
		return err
	}

	<-workersDone
	log.Info("server stopped")
	return nil
}
