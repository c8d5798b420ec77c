package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pantrychef/internal/api"
	"pantrychef/internal/archive"
	"pantrychef/internal/auth"
	"pantrychef/internal/config"
	"pantrychef/internal/imaging"
	"pantrychef/internal/logging"
	"pantrychef/internal/platform/gemini"
	"pantrychef/internal/platform/geminirest"
	"pantrychef/internal/quota"
	"pantrychef/internal/recipe"
)

func main() {
	os.Exit(start(os.Args[1:]))
}

// start returns the process exit code so deferred cleanup, including the
// log file flush, runs before the process exits.
func start(args []string) int {
	flags := flag.NewFlagSet("api", flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		return 1
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.WithError(err).Error("failed to set up logging")
		return 1
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Error("server stopped")
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := recipe.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	model, closeModel, err := newModel(ctx, cfg.Gemini)
	if err != nil {
		return err
	}
	defer closeModel()

	limiter, err := newLimiter(ctx, cfg.Quota, store)
	if err != nil {
		return err
	}

	opts := []recipe.Option{recipe.WithPreprocessor(imaging.NewResizer(cfg.Images.MaxWidth, cfg.Images.MaxPixels))}
	archiver, err := newArchiver(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	if archiver != nil {
		opts = append(opts, recipe.WithArchiver(archiver))
	}

	generator := recipe.NewGenerator(model, store, recipe.GeneratorConfig{
		MaxImages: cfg.Images.MaxCount,
		Timeout:   cfg.Gemini.Timeout,
	}, opts...)

	handler := api.NewHandler(generator, limiter, store)
	authn := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Audience)

	gin.SetMode(gin.ReleaseMode)
	srv := newHTTPServer(cfg.Server, api.NewRouter(handler, authn))

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":      cfg.Server.Addr,
			"model":     cfg.Gemini.Model,
			"transport": cfg.Gemini.Transport,
			"quota":     cfg.Quota.Backend,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// newModel selects the Gemini transport.
func newModel(ctx context.Context, cfg config.GeminiConfig) (recipe.Model, func(), error) {
	switch cfg.Transport {
	case "rest":
		return geminirest.NewClient(cfg.APIKey, cfg.Model, cfg.BaseURL, &http.Client{}), func() {}, nil
	default:
		client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}
}

// newLimiter selects the quota backend.
func newLimiter(ctx context.Context, cfg config.QuotaConfig, counter quota.Counter) (quota.Limiter, error) {
	if cfg.Backend != "redis" {
		return quota.NewStoreLimiter(counter, cfg.DailyLimit), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.WithField("addr", opts.Addr).Info("connected to redis")
	return quota.NewRedisLimiter(client, cfg.DailyLimit), nil
}

// newArchiver returns nil when archiving is disabled.
func newArchiver(ctx context.Context, cfg config.ArchiveConfig) (recipe.Archiver, error) {
	switch cfg.Backend {
	case "file":
		return archive.NewDir(cfg.Dir), nil
	case "s3":
		bucket, err := archive.NewS3Bucket(ctx, cfg.Region, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return bucket, nil
	default:
		return nil, nil
	}
}
