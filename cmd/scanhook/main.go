package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/scanhook/scanhook/internal/api"
	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/changefeed"
	"github.com/scanhook/scanhook/internal/config"
	"github.com/scanhook/scanhook/internal/extract"
	"github.com/scanhook/scanhook/internal/job"
	"github.com/scanhook/scanhook/internal/pipeline"
	"github.com/scanhook/scanhook/internal/queue"
	"github.com/scanhook/scanhook/internal/webhook"
)

// feed is a change feed the store publishes into.
type feed interface {
	job.Publisher
	Wait()
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(); err != nil {
		slog.Error("scanhook", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, listen string
	flagSet := pflag.NewFlagSet("scanhook", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "load environment variables from this file if it exists")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides SCANHOOK_LISTEN_ADDR)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flagSet.Changed("env-file") {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := pipeline.NewDispatcher(
		webhook.New(webhook.WithBlockPrivate(cfg.CallbackBlockPrivate)),
		logger,
	)
	changes, closeFeed, err := openFeed(ctx, cfg, logger, dispatcher.OnJobRecordChanged)
	if err != nil {
		return err
	}
	defer closeFeed()
	defer changes.Wait()

	store, err := openStore(ctx, cfg, changes)
	if err != nil {
		return err
	}
	defer store.Close()

	signer, err := blob.NewSigner(cfg.UploadSigningKey, cfg.PublicURL, cfg.BlobBucket)
	if err != nil {
		return fmt.Errorf("upload signer: %w", err)
	}
	objects, err := blob.NewFSStore(cfg.BlobDir, cfg.BlobBucket, logger)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	extractor := extract.NewTesseract(extract.TesseractConfig{
		Binary: cfg.TesseractPath,
		Lang:   cfg.TesseractLang,
	}, objects, logger)
	extraction := pipeline.NewExtraction(extractor, store, cfg.ExtractTimeout, logger)

	q := queue.New(cfg, store, objects, extraction, logger)
	objects.SetNotifier(q.Notify)
	if err := q.Recovery(ctx); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	q.Start(ctx)
	defer q.Wait()

	mux := http.NewServeMux()
	api.NewHandler(cfg, api.Deps{
		Intake:   pipeline.NewIntake(store, signer, cfg.UploadTTL, logger),
		Query:    pipeline.NewQuery(store),
		Uploads:  objects,
		Verifier: signer,
		Queue:    q,
		Changes:  changes,
		Logger:   logger,
	}).RegisterRoutes(mux)

	handler := api.Chain(mux,
		api.CORS(cfg.CORSOrigins),
		api.RequestID,
		api.Logging(logger),
		api.RateLimit(ctx, cfg.RateLimitRPS, "/api/v1/files"),
		api.Auth(cfg.APIKeys),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("scanhook listening", "addr", cfg.ListenAddr, "bucket", cfg.BlobBucket)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, p job.Publisher) (job.Store, error) {
	if cfg.PostgresDSN != "" {
		store, err := job.NewPostgresStore(ctx, cfg.PostgresDSN, job.WithPublisher(p))
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return store, nil
	}
	store, err := job.NewSQLiteStore(cfg.DBPath, job.WithPublisher(p))
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return store, nil
}

// openFeed returns the change feed, already delivering its changes to h,
// and a func that releases it once nothing publishes anymore.
func openFeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, h changefeed.Handler) (feed, func(), error) {
	if cfg.RedisAddr == "" {
		local := changefeed.NewLocal()
		local.Subscribe(h)
		return local, func() {}, nil
	}

	r, err := changefeed.NewRedis(changefeed.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Channel:  cfg.RedisChannel,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("redis change feed: %w", err)
	}
	if err := r.Subscribe(ctx); err != nil {
		r.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("redis change feed: %w", err)
	}
	go func() {
		if err := r.Run(ctx, h); err != nil {
			logger.Error("changefeed: subscriber stopped", "error", err)
		}
	}()
	closeFeed := func() {
		if err := r.Close(); err != nil {
			logger.Warn("changefeed: close", "error", err)
		}
	}
	return r, closeFeed, nil
}
