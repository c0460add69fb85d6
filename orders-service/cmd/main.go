package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/alert"
	ordershttp "github.com/fjod/go_shop/orders-service/internal/http"
	"github.com/fjod/go_shop/orders-service/internal/repository"
	"github.com/fjod/go_shop/orders-service/internal/scheduler"
	"github.com/fjod/go_shop/orders-service/internal/service"
	"github.com/fjod/go_shop/pkg/config"
	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/fjod/go_shop/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort         string
	LogLevel         string
	DB               repository.Credentials
	SweepInterval    time.Duration
	PendingThreshold time.Duration
	KafkaBrokers     []string
	KafkaTopic       string
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort: config.GetEnv("HTTP_PORT", "8081"),
		LogLevel: config.GetEnv("LOG_LEVEL", "info"),
		DB: repository.Credentials{
			Host:              config.GetEnv("DB_HOST", "localhost"),
			Port:              config.GetEnvInt("DB_PORT", 5432),
			User:              config.GetEnv("DB_USER", "postgres"),
			Password:          config.GetEnv("DB_PASSWORD", "postgres"),
			DBName:            config.GetEnv("DB_NAME", "orders"),
			MigrationsDirPath: config.GetEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		SweepInterval:    config.GetEnvDuration("ANOMALY_SWEEP_INTERVAL", scheduler.DefaultInterval),
		PendingThreshold: config.GetEnvDuration("ANOMALY_PENDING_THRESHOLD", scheduler.DefaultThreshold),
		KafkaBrokers:     config.GetEnvList("ANOMALY_KAFKA_BROKERS", ""),
		KafkaTopic:       config.GetEnv("ANOMALY_KAFKA_TOPIC", alert.DefaultTopic),
		RequestTimeout:   config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:  config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New("orders-service", cfg.LogLevel)
	log.Info("orders-service starting...")
	var wg sync.WaitGroup

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	log.Info("database migrations completed")

	sinks := alert.MultiSink{alert.NewLogSink(log)}
	var kafkaSink *alert.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = alert.NewKafkaSink(cfg.KafkaTopic, cfg.KafkaBrokers...)
		sinks = append(sinks, kafkaSink)
		log.WithField("topic", cfg.KafkaTopic).Info("publishing order anomalies to kafka")
	}

	orderService := service.NewOrderService(repo, sinks, log)

	// Stale order sweep
	sweeper := scheduler.NewAnomalyScheduler(orderService, service.AnomalyReasonPendingTooLong,
		cfg.SweepInterval, cfg.PendingThreshold, prometheus.DefaultRegisterer, log)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(sweepCtx)
	}()

	r := httpx.NewRouter("orders-service", log, cfg.RequestTimeout)
	ordershttp.NewOrdersHandler(orderService, log).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "orders-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("orders service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orders service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	sweepCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("anomaly scheduler stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("anomaly scheduler didn't stop in time")
	}

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.WithError(err).Error("failed to close kafka writer")
		}
	}
	log.Info("orders service stopped")
}
