package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/photoflow/internal/auth"
	"github.com/your-org/photoflow/internal/ingestion"
	"github.com/your-org/photoflow/pkg/config"
	"github.com/your-org/photoflow/pkg/kafka"
	"github.com/your-org/photoflow/pkg/logger"
	"github.com/your-org/photoflow/pkg/metastore"
	"github.com/your-org/photoflow/pkg/storage/objectstore"
	"github.com/your-org/photoflow/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := objectstore.New(ctx, objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Root:      cfg.Upload.Root,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	records, err := metastore.Open(ctx, metastore.Config{
		Driver:  cfg.Metastore.Driver,
		DSN:     cfg.Metastore.DSN,
		Dir:     cfg.Metastore.Dir,
		Migrate: cfg.Metastore.Migrate,
	})
	if err != nil {
		logr.Fatal("init metastore", zap.Error(err))
	}

	var publisher ingestion.Publisher
	if cfg.Kafka.Enabled {
		publisher = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.ImagesTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
	}

	service := ingestion.NewService(ingestion.Params{
		Store:         store,
		Records:       metastore.NewCachedStore(records, cfg.Metastore.EventTTL),
		Publisher:     publisher,
		Logger:        logr,
		MaxEntryBytes: cfg.Upload.MaxEntryBytes,
	})

	limiter := auth.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Stop()

	handler := ingestion.NewHTTPHandler(
		service,
		auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, logr),
		limiter,
		logr,
		ingestion.HTTPOptions{
			MaxSizeBytes:   cfg.Upload.MaxSizeBytes,
			FormMemBytes:   cfg.Upload.MultipartMemBytes,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		},
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := service.Close(shutdownCtx); err != nil {
			logr.Error("service shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("ingestion service starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("metastore", cfg.Metastore.Driver))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
	<-done
}
