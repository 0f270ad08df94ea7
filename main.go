package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	alarminterfaces "home-monitor/internal/alarms/interfaces"
	alarmnotify "home-monitor/internal/alarms/notify"
	"home-monitor/internal/auth"
	catalogrepo "home-monitor/internal/catalog/infrastructure/postgres"
	"home-monitor/internal/config"
	"home-monitor/internal/eventing"
	"home-monitor/internal/eventing/eventbus"
	eventingrepo "home-monitor/internal/eventing/infrastructure/postgres"
	"home-monitor/internal/logger"
	"home-monitor/internal/observability/metrics"
	"home-monitor/internal/readings/application"
	"home-monitor/internal/readings/application/events"
	readingsrepo "home-monitor/internal/readings/infrastructure/postgres"
	readingshttp "home-monitor/internal/readings/interfaces/http"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		zlog.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init()

	paramRepo := catalogrepo.NewParameterRepository(db)
	readingRepo := readingsrepo.NewReadingRepository(db)
	bucketQuery := readingsrepo.NewBucketQuery(db)

	registry := eventing.NewRegistry()
	eventing.Register[events.AlarmStateChanged](registry)

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	bus := eventbus.NewInMemoryBus()
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore)

	var channel alarmnotify.Channel
	if cfg.Notify.WebhookURL != "" {
		webhook, err := alarmnotify.NewWebhookChannel(cfg.Notify.WebhookURL, alarmnotify.WithTimeout(cfg.Notify.Timeout()))
		if err != nil {
			zlog.Fatal("webhook channel error", zap.Error(err))
		}
		channel = webhook
	} else {
		channel = alarmnotify.NewLogChannel(zlog)
	}
	template, err := alarmnotify.NewTemplate(cfg.Notify.Template)
	if err != nil {
		zlog.Fatal("notify template error", zap.Error(err))
	}
	notifier, err := alarmnotify.NewNotifier(paramRepo, channel, template, zlog)
	if err != nil {
		zlog.Fatal("notifier error", zap.Error(err))
	}
	consumer, err := alarminterfaces.NewAlarmStateChangedConsumer(notifier)
	if err != nil {
		zlog.Fatal("alarm consumer error", zap.Error(err))
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.AlarmStateChanged](), "alarms.notify", func(ctx context.Context, event any) error {
		evt, ok := event.(events.AlarmStateChanged)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return consumer.Consume(ctx, evt)
	}, processedStore)

	ingestService, err := application.NewIngestService(db, paramRepo, readingRepo, outboxStore, dispatcher, zlog)
	if err != nil {
		zlog.Fatal("ingest service error", zap.Error(err))
	}
	readingsHandler, err := readingshttp.NewHandler(ingestService, bucketQuery, paramRepo, zlog)
	if err != nil {
		zlog.Fatal("readings handler error", zap.Error(err))
	}

	// Periodic flush drains anything the post-commit push missed, for
	// example events written while the process was down.
	go func() {
		ticker := time.NewTicker(cfg.Outbox.FlushInterval())
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := dispatcher.Dispatch(ctx, cfg.Outbox.BatchSize); err != nil {
				zlog.Warn("outbox flush error", zap.Error(err))
			}
			if pending, err := outboxStore.PendingCount(ctx); err == nil {
				metrics.SetOutboxPending(pending)
			}
			cancel()
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/parameters/", readingsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), zlog)}
	zlog.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	zlog.Fatal("server exited", zap.Error(server.ListenAndServe()))
}

// loggingMiddleware assigns each request a correlation id, carried in the
// context so outbox envelopes written during the request reference it, and
// echoed back in the X-Request-ID response header.
func loggingMiddleware(next http.Handler, zlog *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := eventing.WithCorrelationID(r.Context(), requestID)

		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r.WithContext(ctx))
		zlog.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
