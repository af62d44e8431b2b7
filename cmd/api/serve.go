package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/imageproof/internal/application"
	appanalyses "github.com/bryanwahyu/imageproof/internal/application/analyses"
	"github.com/bryanwahyu/imageproof/internal/application/scoring"
	"github.com/bryanwahyu/imageproof/internal/config"
	"github.com/bryanwahyu/imageproof/internal/infra/auth"
	"github.com/bryanwahyu/imageproof/internal/infra/events"
	"github.com/bryanwahyu/imageproof/internal/infra/httpserver"
	"github.com/bryanwahyu/imageproof/internal/infra/queue"
	minioStore "github.com/bryanwahyu/imageproof/internal/infra/storage"
	"github.com/bryanwahyu/imageproof/internal/infra/telemetry"
	"github.com/bryanwahyu/imageproof/internal/middleware"
	"github.com/bryanwahyu/imageproof/internal/observability"
)

const shutdownTimeout = 10 * time.Second

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scoring workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not create the schema on startup")
}

func serve(ctx context.Context, c *config.Config) error {
	db, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()
	if !skipMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	store, err := minioStore.New(ctx, minioStore.Options{
		Endpoint:      c.Minio.Endpoint,
		Region:        c.Minio.Region,
		Bucket:        c.Minio.BucketName,
		AccessKey:     c.Minio.AccessKey,
		SecretKey:     c.Minio.SecretKey,
		UseSSL:        c.Minio.UseSSL,
		PublicBaseURL: c.Minio.PublicBaseURL,
		UploadExpiry:  c.Minio.UploadExpiry,
		URLExpiry:     c.Minio.URLExpiry,
	})
	if err != nil {
		return eris.Wrap(err, "minio init")
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	reporter, err := telemetry.New(telemetry.Options{DSN: c.Sentry.DSN, Environment: c.Sentry.Environment})
	if err != nil {
		return err
	}
	defer reporter.Flush(2 * time.Second)

	hub := events.NewHub()
	bus, err := newBus(ctx, c, hub)
	if err != nil {
		return err
	}
	defer bus.Close()

	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db.db},
		"storage":  middleware.CheckFunc(store.Check),
	}
	if rb, ok := bus.(*events.RedisBus); ok {
		health["redis"] = middleware.CheckFunc(rb.Check)
	}

	authn, err := newAuthenticator(c.Auth)
	if err != nil {
		return err
	}

	// scoring outlives individual requests; it is stopped through q.Close
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	q := queue.NewMemory(c.Scoring.MaxConcurrent, metrics)
	worker := &scoring.Worker{
		Repo:     db.repo,
		Events:   bus,
		MinDelay: c.Scoring.MinDelay,
		MaxDelay: c.Scoring.MaxDelay,
		Reporter: reporter,
		Metrics:  metrics,
		Clock:    application.SystemClock{},
	}
	q.Start(workerCtx, worker.Handle)

	svc := &appanalyses.Service{
		Repo:   db.repo,
		Blobs:  store,
		Queue:  q,
		Events: bus,
		Clock:  application.SystemClock{},
	}

	var ready atomic.Bool
	ready.Store(true)

	handler := httpserver.NewRouter(httpserver.Options{
		Analyses:    svc,
		Hub:         hub,
		Auth:        authn,
		Metrics:     metrics,
		Health:      health,
		Ready:       &ready,
		CORSOrigins: c.Server.CORSOrigins,
		RateRPS:     c.RateLimit.RPS,
		RateBurst:   c.RateLimit.Burst,
	})

	addr := fmt.Sprintf(":%d", c.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening",
			zap.String("addr", addr),
			zap.String("database", c.Database.Driver),
			zap.String("events", c.Events.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server error")
		}
	}

	zap.L().Info("shutting down server...")
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	if err := q.Close(shutdownCtx); err != nil {
		zap.L().Warn("scoring tasks still running at shutdown", zap.Error(err))
	}
	return nil
}

func newBus(ctx context.Context, c *config.Config, hub *events.Hub) (events.Bus, error) {
	if c.Events.Driver != "redis" {
		return events.NewLocalBus(hub), nil
	}
	rb, err := events.NewRedisBus(ctx, c.Events.RedisAddr, c.Events.RedisChannel)
	if err != nil {
		return nil, err
	}
	if err := rb.StartForwarder(ctx, hub.Broadcast); err != nil {
		_ = rb.Close()
		return nil, err
	}
	return rb, nil
}

func newAuthenticator(a config.AuthConfig) (auth.Authenticator, error) {
	var chain auth.Chain
	if len(a.APIKeys) > 0 {
		chain = append(chain, auth.NewAPIKeys(a.APIKeys))
	}
	if a.JWTSecret != "" {
		j, err := auth.NewJWT(a.JWTSecret, a.JWTIssuer)
		if err != nil {
			return nil, err
		}
		chain = append(chain, j)
	}
	if len(chain) == 0 {
		zap.L().Warn("no auth configured; every request is anonymous")
	}
	return chain, nil
}
