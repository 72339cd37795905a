package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"veriflow/internal/audit"
	auditkafka "veriflow/internal/audit/kafka"
	"veriflow/internal/notification"
	"veriflow/internal/platform/config"
	"veriflow/internal/platform/httpserver"
	"veriflow/internal/platform/logger"
	"veriflow/internal/platform/middleware"
	platformpostgres "veriflow/internal/platform/postgres"
	platformredis "veriflow/internal/platform/redis"
	subjectstore "veriflow/internal/subject/store"
	httptransport "veriflow/internal/transport/http"
	verificationhandler "veriflow/internal/verification/handler"
	"veriflow/internal/verification/metrics"
	"veriflow/internal/verification/provider"
	"veriflow/internal/verification/service"
	"veriflow/internal/verification/signature"
	sessionstore "veriflow/internal/verification/store/session"
	"veriflow/internal/verification/sweeper"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session and subject persistence. Postgres wins when both are
	// configured; the in-memory stores are for local development only.
	var (
		sessions service.SessionStore
		subjects service.SubjectStore
		auditDst audit.Store
		sweepSrc sweeper.SessionStore
		ready    func(ctx context.Context) error
	)
	switch {
	case cfg.PostgresDSN != "":
		db, err := platformpostgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := sessionstore.NewPostgres(db)
		sessions, sweepSrc = pg, pg
		subjects = subjectstore.NewPostgres(db)
		auditDst = audit.NewPostgres(db)
		ready = db.PingContext
		log.Info("using postgres session store")
	case cfg.Redis.URL != "":
		rdb, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		rs := sessionstore.NewRedis(rdb.Client)
		sessions, sweepSrc = rs, rs
		subjects = subjectstore.NewInMemory()
		auditDst = audit.NewInMemoryStore()
		ready = rdb.Health
		log.Info("using redis session store")
	default:
		mem := sessionstore.NewInMemory()
		sessions, sweepSrc = mem, mem
		subjects = subjectstore.NewInMemory()
		auditDst = audit.NewInMemoryStore()
		log.Warn("no store configured, sessions will not survive restarts")
	}

	// Kafka overrides the audit sink when brokers are configured.
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("kafka topic setup failed", "error", err)
			os.Exit(1)
		}
		auditDst = sink
		log.Info("audit trail publishing to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	publisher := audit.NewPublisher(auditDst,
		audit.WithAsyncBuffer(256),
		audit.WithLogger(log),
	)
	defer publisher.Close()

	m := metrics.New()
	providerClient := provider.NewHTTPClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		&http.Client{Timeout: cfg.Provider.Timeout},
	)

	svc := service.New(sessions, providerClient,
		service.Config{
			HighValueThresholdCents: cfg.HighValueThresholdCents,
			CallbackURL:             cfg.Provider.CallbackURL,
			RedirectURL:             cfg.Provider.RedirectURL,
		},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(publisher),
		service.WithSubjectStore(subjects),
		service.WithNotifier(notification.NewLogNotifier(log)),
	)

	if cfg.WebhookSecret == "" {
		log.Warn("webhook secret not configured, all webhooks will be rejected")
	}
	handler := verificationhandler.New(svc, signature.NewVerifier(cfg.WebhookSecret), log, m,
		verificationhandler.WithAuditPublisher(publisher))

	router := httptransport.NewRouter(httptransport.Dependencies{
		Verification: handler,
		Auth:         middleware.NewAuth(cfg.JWTSigningKey, cfg.APIKeyHashes, log),
		Ready:        ready,
	})

	srv := httpserver.New(cfg.Addr, router)
	sw := sweeper.New(sweepSrc, cfg.InProgressMaxAge, cfg.SweepInterval,
		sweeper.WithLogger(log),
		sweeper.WithMetrics(m),
		sweeper.WithAuditPublisher(publisher),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sw.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
