package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/fjod/go_shop/pkg/config"
	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/fjod/go_shop/pkg/logger"
	producthttp "github.com/fjod/go_shop/product-service/internal/http"
	"github.com/fjod/go_shop/product-service/internal/repository"
	"github.com/fjod/go_shop/product-service/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	ESAddresses     []string
	ESUsername      string
	ESPassword      string
	ESIndex         string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        config.GetEnv("HTTP_PORT", "8083"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		ESAddresses:     config.GetEnvList("ES_ADDRESSES", "http://localhost:9200"),
		ESUsername:      config.GetEnv("ES_USERNAME", ""),
		ESPassword:      config.GetEnv("ES_PASSWORD", ""),
		ESIndex:         config.GetEnv("ES_INDEX", repository.DefaultIndex),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New("product-service", cfg.LogLevel)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ESAddresses,
		Username:  cfg.ESUsername,
		Password:  cfg.ESPassword,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create elasticsearch client")
	}

	repo := repository.NewElasticRepository(esClient, cfg.ESIndex, log)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repo.EnsureIndex(initCtx); err != nil {
		cancelInit()
		log.WithError(err).Fatal("failed to prepare products index")
	}
	cancelInit()
	log.WithField("index", cfg.ESIndex).Info("products index ready")

	productService := service.NewProductService(repo, log)

	r := httpx.NewRouter("product-service", log, cfg.RequestTimeout)
	producthttp.NewProductsHandler(productService, log).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "product-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("product service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down product service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("product service stopped")
}
