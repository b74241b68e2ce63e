package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taxledger/internal/amqp"
	"taxledger/internal/auth"
	"taxledger/internal/cache"
	"taxledger/internal/cli"
	apphttp "taxledger/internal/http"
	applog "taxledger/internal/log"
	"taxledger/internal/ports"
	"taxledger/internal/report"
	"taxledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.OpenStore(startupCtx, logger, cfg)
	cancelStartup()

	// Recalculation requests are only published when a worker can consume them.
	var publisher ports.RecalculationPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() && cfg.AutoRecalculate {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := amqp.NewClient(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cancelDial()
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without recalculation requests", "error", err)
		} else {
			amqpClient = client
			publisher = client
			logger.Info("Initialized AMQP publisher", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	slabs := services.NewSlabService(store.Store, publisher)
	authService, err := auth.NewService(store.Store, auth.Config{
		Key:                 []byte(cfg.JWTKey),
		Issuer:              cfg.JWTIssuer,
		Audience:            cfg.JWTAudience,
		Expiry:              cfg.JWTExpiry,
		RegistrationEnabled: cfg.RegistrationEnabled,
		BcryptCost:          bcrypt.DefaultCost,
	})
	if err != nil {
		logger.Error("Failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(slabs.Cache())
	caches.StartCleanup(10 * time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Taxpayers:         services.NewTaxpayerService(store.Store, store.Store),
		Incomes:           services.NewIncomeService(store.Store, store.Store, publisher),
		Slabs:             slabs,
		Calculations:      services.NewCalculationService(store.Store, store.Store, store.Store, slabs),
		Auth:              authService,
		Reports:           report.NewRenderer(),
		Store:             store.Store,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		requests, limited, suspicious, blocked := srv.Stats()
		logger.Info("Request statistics",
			"total_requests", requests,
			"rate_limited", limited,
			"suspicious", suspicious,
			"blocked", blocked)

		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	})

	logger.Info("Starting taxledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", publisher != nil,
		"registration_enabled", cfg.RegistrationEnabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
