package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"dobkap/internal/amqp"
	"dobkap/internal/cli"
	"dobkap/internal/core"
	"dobkap/internal/filing"
	apphttp "dobkap/internal/http"
	"dobkap/internal/jobs"
	"dobkap/internal/log"
	"dobkap/internal/mailbox"
	"dobkap/internal/rates"
	"dobkap/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	nbs := rates.NewNBSClient(rates.NBSConfig{
		BaseURL:           cfg.NBSBaseURL,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.NBSRateLimit,
	})
	rateOpts := []rates.Option{
		rates.WithCache(rates.Layered{rates.NewMemoryCache(), rates.NewStoreCache(repo)}),
	}
	if bx := rates.NewBanxicoClient(rates.DefaultBanxicoBaseURL, cfg.BanxicoToken, cfg.HTTPTimeout); bx != nil {
		rateOpts = append(rateOpts, rates.WithSecondary(bx))
		logger.Info("Banxico cross rates enabled")
	}
	triangulator := rates.New(nbs, rateOpts...)

	pipeline := filing.NewPipeline(repo, func(obs []core.ExchangeRateObservation) filing.Resolver {
		return triangulator.WithObservations(obs)
	})
	engine := mailbox.NewEngine(mailbox.NewIMAPDialer(cfg.IMAPTimeout), repo)

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP not configured, filings are exported by the worker sweep only")
	}

	jobStore := jobs.NewStore(cfg.JobRetention)
	syncService := services.NewSyncService(repo, jobStore, engine, pipeline, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:  repo,
		Sync:   syncService,
		Jobs:   jobStore,
		Logger: logger,
	})

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", srv.Addr, log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SyncSchedule != "" {
		scheduler := services.NewScheduler(syncService)
		if err := scheduler.Schedule(gctx, cfg.SyncSchedule); err != nil {
			logger.Error("Failed to schedule sync", log.FieldError, err)
			os.Exit(1)
		}
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		cancel()
		os.Exit(1)
	}

	// Running sync jobs are detached from the request context; cancel them
	// through the store and wait for their final messages.
	for _, id := range jobStore.Active() {
		jobStore.Cancel(id)
	}
	jobStore.Wait()
	logger.Info("Server exited")
}
