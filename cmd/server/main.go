package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	mqcontracts "mail-archivist/contracts/mq"
	"mail-archivist/internal/agent"
	"mail-archivist/internal/classifier"
	"mail-archivist/internal/config"
	"mail-archivist/internal/handler"
	"mail-archivist/internal/httpserver"
	"mail-archivist/internal/logstream"
	"mail-archivist/internal/mail"
	"mail-archivist/internal/mqhandler"
	"mail-archivist/internal/pipeline"
	"mail-archivist/internal/repository"
	"mail-archivist/internal/repository/postgres"
	"mail-archivist/internal/repository/sqlite"
	"mail-archivist/internal/rules"
	"mail-archivist/internal/settings"
	pkgconfig "mail-archivist/pkg/config"
	"mail-archivist/pkg/db"
	"mail-archivist/pkg/logger"
	"mail-archivist/pkg/mq"
	"mail-archivist/pkg/otel"
	"mail-archivist/pkg/redis"
	"mail-archivist/pkg/util"
)

const (
	serviceName    = "mail-archivist"
	serviceVersion = "0.1.0"
)

type storage struct {
	rules  repository.RuleRepository
	emails repository.EmailRepository
	check  *httpserver.ReadinessCheck
	close  func()
}

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config initialization failed", zap.Error(err))
	}

	// 2. Tracing
	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Storage
	store, err := openStorage(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer store.close()

	var checks []httpserver.ReadinessCheck
	if store.check != nil {
		checks = append(checks, *store.check)
	}

	// 4. RabbitMQ publisher; events stays nil when MQ is disabled.
	var events rules.EventPublisher
	var publisher *mq.Publisher
	if cfg.MQ.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("MQ publisher initialization failed", zap.Error(err))
		}
		defer publisher.Close()
		events = publisher
		checks = append(checks, httpserver.ReadinessCheck{Name: "mq", Check: func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		}})
	}

	// 5. Redis deduper for the archive phase
	var deduper pipeline.Deduper
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, archive dedup disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			deduper = util.NewDeduper(rdb, cfg.Pipeline.DedupTTL, log.Named("dedup"))
			checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		}
	}

	// 6. Rules
	ruleStore := rules.NewStore(store.rules, events, log.Named("rules"))
	if err := ruleStore.Load(ctx); err != nil {
		log.Fatal("Rule loading failed", zap.Error(err))
	}

	// 7. Collaborators
	settingsStore := settings.New(cfg.Agent.APIKey, cfg.IMAP.Username != "" && cfg.IMAP.Password != "")
	agentClient := agent.NewClient(agent.Config{
		BaseURL:    cfg.Agent.BaseURL,
		Model:      cfg.Agent.Model,
		Timeout:    cfg.Agent.Timeout,
		Categories: cfg.Agent.Categories,
	}, settingsStore)
	mailClient := mail.NewClient(mail.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		Mailbox:  cfg.IMAP.Mailbox,
	})

	var fallback classifier.Categorizer
	if cfg.Pipeline.ClassifyAIFallback {
		fallback = agentClient
	}
	cls := classifier.New(ruleStore, fallback, cfg.Pipeline.CallTimeout)

	// 8. Orchestrator; its log lines are teed into the polled stream.
	stream := logstream.New(cfg.Pipeline.LogCapacity)
	pipelineLog := logger.Tee(log.Named("pipeline"), logstream.NewCore(stream, zapcore.InfoLevel))
	orch := pipeline.New(pipeline.Deps{
		Emails:     store.emails,
		Rules:      ruleStore,
		Classifier: cls,
		Fetcher:    mailClient,
		Archiver:   mailClient,
		Proposer:   agentClient,
		Deduper:    deduper,
		Publisher:  events,
	}, pipeline.Options{
		Cooldown:    cfg.Pipeline.Cooldown,
		CallTimeout: cfg.Pipeline.CallTimeout,
		SenderLimit: cfg.Pipeline.SenderLimit,
	}, pipelineLog)

	// 9. pipeline.requested consumer
	if cfg.MQ.Enabled {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Queue, mqcontracts.RoutingPipelineRequested, log)
		if err != nil {
			log.Fatal("MQ consumer initialization failed", zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(mqhandler.NewPipelineRequestedHandler(orch, log.Named("mqhandler")).Handle)

		go func() {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer stopped", zap.Error(err))
			}
		}()
	}

	// 10. HTTP
	router := httpserver.NewRouter(httpserver.Handlers{
		Rules:    handler.NewRuleHandler(ruleStore, log),
		Pipeline: handler.NewPipelineHandler(orch, log),
		Logs:     handler.NewLogHandler(stream),
		Stats:    handler.NewStatsHandler(store.emails, ruleStore, log),
		Settings: handler.NewSettingsHandler(settingsStore),
	}, checks...)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Port), zap.String("db_driver", cfg.DB.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Warn("Pipeline shutdown incomplete", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg pkgconfig.DBConfig, log *zap.Logger) (*storage, error) {
	switch cfg.Driver {
	case pkgconfig.DriverMemory, "":
		log.Warn("Using in-memory storage; data is lost on restart")
		return &storage{
			rules:  repository.NewMemoryRuleRepository(),
			emails: repository.NewMemoryEmailRepository(),
			close:  func() {},
		}, nil

	case pkgconfig.DriverSQLite:
		conn, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Info("Opened SQLite database", zap.String("path", cfg.Path))
		return &storage{
			rules:  sqlite.NewRuleRepository(conn),
			emails: sqlite.NewEmailRepository(conn),
			check:  &httpserver.ReadinessCheck{Name: "db", Check: conn.Ping},
			close:  func() { _ = conn.Close() },
		}, nil

	case pkgconfig.DriverPostgres:
		pool, err := db.NewConnection(cfg, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			rules:  postgres.NewRuleRepository(pool),
			emails: postgres.NewEmailRepository(pool),
			check:  &httpserver.ReadinessCheck{Name: "db", Check: pool.Ping},
			close:  pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
}
