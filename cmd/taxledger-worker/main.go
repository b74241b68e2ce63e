package main

import (
	"context"
	"errors"
	"os"
	"time"

	"taxledger/internal/amqp"
	"taxledger/internal/cli"
	applog "taxledger/internal/log"
	"taxledger/internal/services"
	gsheet "taxledger/internal/sheets/google"
	"taxledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(applog.ComponentWorker)
	logger.Info("Starting taxledger-worker")

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.OpenStore(startupCtx, logger, cfg)
	cancelStartup()

	slabs := services.NewSlabService(store.Store, nil)
	calculations := services.NewCalculationService(store.Store, store.Store, store.Store, slabs)

	var exporter *services.ExportProcessor
	if cfg.SheetsEnabled() {
		sheetsCtx, cancelSheets := context.WithTimeout(context.Background(), 30*time.Second)
		sheetsClient, err := gsheet.NewClient(sheetsCtx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		cancelSheets()
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = services.NewExportProcessor(store.Store, store.Store, sheetsClient, services.ExportProcessorConfig{
			PollInterval: cfg.ExportInterval,
			BatchSize:    cfg.ExportBatchSize,
		})
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var batchExporter worker.BatchExporter
	if exporter != nil {
		batchExporter = exporter
	}
	recalc := worker.NewRecalculationWorker(calculations, batchExporter).WithSlabCache(slabs)

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := amqp.NewClient(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cancelDial()
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient = client
	} else {
		logger.Info("AMQP disabled - running periodic export only")
	}

	if exporter == nil && amqpClient == nil {
		logger.Error("Nothing to do: configure AMQP_URL or GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if exporter != nil {
			if err := exporter.Stop(shutdownCtx); err != nil {
				logger.Error("Export processor stop error", "error", err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	})

	if exporter != nil {
		logger.Info("Performing startup export check...")
		exported := recalc.StartupExportCheck(ctx)
		logger.Info("Startup export check finished", "exported", exported)

		if err := exporter.Start(ctx); err != nil {
			logger.Error("Failed to start export processor", "error", err)
			os.Exit(1)
		}
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeRecalculations(ctx, recalc.HandleRecalculation)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
