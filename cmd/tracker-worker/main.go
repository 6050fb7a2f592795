package main

import (
	"context"
	"os"
	"time"

	"tracker/internal/amqp"
	"tracker/internal/backend"
	"tracker/internal/cli"
	"tracker/internal/log"
	"tracker/internal/services"
	"tracker/internal/sheets"
	gsheet "tracker/internal/sheets/google"
	sheetsmem "tracker/internal/sheets/memory"
	"tracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting tracker-worker", log.FieldOperation, log.OpStartup)
	cfg := cli.LoadAndValidateConfig(logger)

	// The worker only reads records, so it never publishes changes itself.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	var exporter sheets.SummaryExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSummarySheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
	} else {
		logger.Info("Google Sheets disabled, exporting to memory")
		exporter = sheetsmem.New()
	}

	var consumer worker.Consumer
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Info("AMQP disabled, running periodic export only")
	}

	w := worker.NewSummaryWorker(
		services.NewSummaryService(res.Records, logger),
		exporter,
		worker.Config{Interval: cfg.SummaryInterval},
		logger,
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := w.StartupExport(ctx); err != nil {
		logger.Error("Failed startup export", log.FieldError, err)
	}
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
