package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"dobkap/internal/amqp"
	"dobkap/internal/cli"
	"dobkap/internal/log"
	"dobkap/internal/sheets"
	gsheet "dobkap/internal/sheets/google"
	mem "dobkap/internal/sheets/memory"
	"dobkap/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var ledger sheets.FilingExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Credentials{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
			ClientJSON:    cfg.GoogleOAuthClientJSON,
			ClientFile:    cfg.GoogleOAuthClientFile,
			TokenJSON:     cfg.GoogleOAuthTokenJSON,
			TokenFile:     cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Exporting filings to Google Sheets", log.FieldSpreadsheet, cfg.GoogleSpreadsheetID)
	} else {
		ledger = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, filings are exported to memory only")
	}

	w := worker.NewExportWorker(repo, ledger, cfg.SyncBatchSize)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		g.Go(func() error {
			logger.Info("Consuming filing events", "queue", cfg.AMQPQueue)
			return client.ConsumeFilingCreated(gctx, w.HandleFilingCreated)
		})
	} else {
		logger.Info("AMQP not configured, relying on the periodic sweep")
	}

	g.Go(func() error {
		logger.Info("Starting export sweep", "interval", cfg.SyncInterval, "batch_size", cfg.SyncBatchSize)
		return w.Run(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker exited")
}
