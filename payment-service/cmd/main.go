package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paymenthttp "github.com/fjod/go_shop/payment-service/internal/http"
	"github.com/fjod/go_shop/payment-service/internal/repository"
	"github.com/fjod/go_shop/payment-service/internal/service"
	"github.com/fjod/go_shop/pkg/config"
	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/fjod/go_shop/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        config.GetEnv("HTTP_PORT", "8082"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:         config.GetEnvInt("REDIS_DB", 0),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New("payment-service", cfg.LogLevel)
	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	log.WithField("addr", cfg.RedisAddr).Info("redis ping succeeded")

	paymentService := service.NewPaymentService(repository.NewRedisRepository(redisClient), log)

	r := httpx.NewRouter("payment-service", log, cfg.RequestTimeout)
	paymenthttp.NewPaymentsHandler(paymentService, log).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "payment-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("payment service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down payment service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("payment service stopped")
}
