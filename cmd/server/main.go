// Command server runs the action governance engine: the authorization
// authority that decides whether an autonomous agent may perform a requested
// operation against the managed worker fleet.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"warden/internal/audit"
	auditmemory "warden/internal/audit/store/memory"
	auditpostgres "warden/internal/audit/store/postgres"
	"warden/internal/audit/stream"
	"warden/internal/circuit"
	"warden/internal/executor"
	"warden/internal/governance"
	govhandler "warden/internal/governance/handler"
	govmetrics "warden/internal/governance/metrics"
	"warden/internal/notify"
	"warden/internal/platform/config"
	"warden/internal/platform/httpserver"
	"warden/internal/platform/logger"
	"warden/internal/platform/middleware"
	platformredis "warden/internal/platform/redis"
	"warden/internal/policy"
	"warden/internal/ratelimit"
	ratememory "warden/internal/ratelimit/store/memory"
	rateredis "warden/internal/ratelimit/store/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	table := policy.Default()
	if cfg.PolicyFile != "" {
		var err error
		table, err = policy.Load(cfg.PolicyFile)
		if err != nil {
			log.Error("policy load failed", "file", cfg.PolicyFile, "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}

	var windowStore ratelimit.WindowStore = ratememory.NewInMemoryWindowStore()
	if redisClient != nil {
		windowStore = rateredis.NewWindowStore(redisClient.Client)
		defer redisClient.Close()
	}

	limiter, err := ratelimit.New(windowStore, table, ratelimit.WithLogger(log))
	if err != nil {
		log.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if cfg.PostgresDSN != "" {
		pgStore, err := auditpostgres.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if err := pgStore.Migrate(context.Background()); err != nil {
			log.Error("audit migration failed", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		auditStore = pgStore
	}

	recorderOpts := []audit.RecorderOption{audit.WithLogger(log)}
	var feed chan audit.Entry
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := stream.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		feed = make(chan audit.Entry, cfg.AuditFeedDepth)
		sink = publisher
		recorderOpts = append(recorderOpts, audit.WithFeed(feed))
	}

	recorder, err := audit.NewRecorder(auditStore, recorderOpts...)
	if err != nil {
		log.Error("audit recorder init failed", "error", err)
		os.Exit(1)
	}

	var notifier governance.Notifier = notify.NewLogNotifier(log)
	if cfg.NotifierURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifierURL)
	}
	var exec governance.Executor = executor.NewLogExecutor(log)
	if cfg.ExecutorURL != "" {
		exec = executor.NewHTTPExecutor(cfg.ExecutorURL)
	}

	circuits := circuit.NewRegistry(table.BreakerThreshold())

	service, err := governance.New(table, limiter, circuits, recorder, auditStore, notifier, exec,
		governance.WithLogger(log),
		governance.WithMetrics(govmetrics.New()),
	)
	if err != nil {
		log.Error("governance init failed", "error", err)
		os.Exit(1)
	}

	operatorGate := middleware.RequireOperator(cfg.JWTSigningKey, log)
	handler := govhandler.New(service, log, operatorGate)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", handler.Register)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting warden", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if sink != nil {
		worker := audit.NewWorker(sink, feed, log)
		g.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
