// SPDX-License-Identifier: MIT

// Command daemon runs the coachscribe service: the HTTP API, the
// transcription worker pool, and the stuck-job reaper in one process.
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
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coachscribe/coachscribe/internal/api"
	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/config"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/orchestrator"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/store"
	"github.com/coachscribe/coachscribe/internal/stt"
	"github.com/coachscribe/coachscribe/internal/stt/assemblyai"
	"github.com/coachscribe/coachscribe/internal/stt/google"
	"github.com/coachscribe/coachscribe/internal/telemetry"
	"github.com/coachscribe/coachscribe/internal/usage"
	"github.com/coachscribe/coachscribe/internal/worker"
)

var (
	version   = "v1.2.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{
		Level:   config.ParseString("LOG_LEVEL", "info"),
		Service: "coachscribe",
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("cannot create data directory")
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "coachscribe",
		ServiceVersion: version,
		Environment:    config.ParseString("DEPLOY_ENV", "production"),
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	plans, err := config.NewPlanRegistry(cfg.PlanFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.PlanFile).Msg("plan configuration invalid")
	}
	if cfg.PlanFile != "" {
		go func() {
			if err := plans.Watch(cfg.PlanFile, ctx.Done()); err != nil {
				logger.Error().Err(err).Str("path", cfg.PlanFile).Msg("plan file watcher stopped")
			}
		}()
	}

	st, err := store.Open(cfg.StoreBackend, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store open failed")
	}
	var ledger usage.Ledger
	if sq, ok := st.(*store.SqliteStore); ok {
		defer closeQuietly(sq, logger, "store")
		ledger = usage.NewSQLLedger(sq.DB)
	} else {
		ledger = usage.NewMemLedger(st)
	}

	gateway, err := openBlobGateway(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.BlobBackend).Msg("blob gateway setup failed")
	}

	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("no usable transcription backend")
	}

	q, redisQ, err := openQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.QueueBackend).Msg("queue setup failed")
	}

	rates := usage.Rates{
		GoogleCentsPerMin:     cfg.RateGoogleCents,
		AssemblyAICentsPerMin: cfg.RateAssemblyAICents,
		Currency:              cfg.Currency,
	}
	orc := orchestrator.New(st, gateway, registry, quota.NewEvaluator(plans), ledger, q, rates, cfg.UploadURLTTL)

	pool := worker.NewPool(orc, q, registry, gateway, worker.Config{
		Concurrency:       cfg.WorkerConcurrency,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.PollInterval,
		ProviderTimeout:   cfg.ProviderTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBase:         cfg.RetryBaseDelay,
		RetryMax:          cfg.RetryMaxDelay,
		ProviderRPS:       cfg.ProviderRPS,
	})

	server := api.NewServer(orc)
	if sq, ok := st.(*store.SqliteStore); ok {
		server.Readiness["store"] = sq
	}
	if redisQ != nil {
		server.Readiness["queue"] = redisQ
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		return orc.RunReaper(gctx, orchestrator.ReaperConfig{
			Interval:          cfg.ReaperInterval,
			TimeoutMultiplier: cfg.ReaperTimeoutMultiplier,
			MinTimeout:        cfg.ReaperMinTimeout,
		})
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Str("version", version).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = q.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func openBlobGateway(ctx context.Context, cfg config.Snapshot) (blob.Gateway, error) {
	switch cfg.BlobBackend {
	case "memory":
		return blob.NewMemoryGateway(), nil
	case "gcs":
		return blob.NewGCSGateway(ctx, cfg.BucketName)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.BlobBackend)
	}
}

// buildRegistry wires every provider that has credentials. The
// configured default must end up backed; if it is not, fall back to
// whichever backend exists so a single-provider deployment still boots.
func buildRegistry(ctx context.Context, cfg config.Snapshot, logger zerolog.Logger) (*stt.Registry, error) {
	var backends []stt.Backend
	if cfg.AssemblyAIAPIKey != "" {
		backends = append(backends, assemblyai.New(cfg.AssemblyAIAPIKey))
	}
	if cfg.GoogleCredsFile != "" {
		gb, err := google.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("google speech client: %w", err)
		}
		backends = append(backends, gb)
	}
	if len(backends) == 0 {
		return nil, errors.New("no provider credentials configured")
	}

	def := cfg.DefaultProvider
	backed := false
	for _, b := range backends {
		if b.Name() == def {
			backed = true
			break
		}
	}
	if !backed {
		fallback := backends[0].Name()
		logger.Warn().
			Str("configured", string(def)).
			Str("using", string(fallback)).
			Msg("default provider has no credentials, falling back")
		def = fallback
	}
	return stt.NewRegistry(def, backends...)
}

func openQueue(cfg config.Snapshot) (queue.Queue, *queue.RedisQueue, error) {
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewMemoryQueue(0), nil, nil
	case "redis":
		rq, err := queue.NewRedisQueue(queue.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.QueueKey,
		}, log.WithComponent("queue"))
		if err != nil {
			return nil, nil, err
		}
		return rq, rq, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend: %s", cfg.QueueBackend)
	}
}

func closeQuietly(c interface{ Close() error }, logger zerolog.Logger, name string) {
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Str("resource", name).Msg("close failed")
	}
}
