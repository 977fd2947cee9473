// fedsyncd is the identity synchronization daemon: it accepts candidate
// identities over HTTP, reconciles them into canonical users through a
// supervised worker pool, and exposes health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/identitylab/fedsync/pkg/config"
	"github.com/identitylab/fedsync/pkg/credentials"
	"github.com/identitylab/fedsync/pkg/events"
	"github.com/identitylab/fedsync/pkg/observability"
	"github.com/identitylab/fedsync/pkg/queue"
	"github.com/identitylab/fedsync/pkg/store/sqlstore"
	"github.com/identitylab/fedsync/pkg/syncer"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("fedsyncd exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.LogJSON)
	log.WithFields(logrus.Fields{
		"driver":      cfg.Database.Driver,
		"concurrency": cfg.Sync.Concurrency,
		"listen":      cfg.Ops.ListenAddr,
	}).Info("starting fedsyncd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.CreateSchema(ctx); err != nil {
		return err
	}

	sources, err := config.WatchSources(ctx, cfg.Sync.SourcesFile, log)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.Events.RedisURL != "" {
		redisPub, err := events.NewRedisPublisher(cfg.Events.RedisURL, cfg.Events.RedisPassword, cfg.Events.RedisDB, cfg.Events.Channel)
		if err != nil {
			return err
		}
		defer redisPub.Close()
		publisher = events.Multi{publisher, redisPub}
		log.WithField("channel", cfg.Events.Channel).Info("redis outcome publisher enabled")
	}

	q := queue.New()
	svc, err := syncer.New(syncer.Config{
		Concurrency: cfg.Sync.Concurrency,
		JobTimeout:  cfg.Sync.JobTimeout,
	}, syncer.Options{
		Queue:     q,
		Store:     st,
		Sources:   sources,
		Logger:    log,
		Metrics:   metrics,
		Publisher: publisher,
	})
	if err != nil {
		return err
	}

	provisioner, err := credentials.New(credentials.Options{
		Store:            st,
		Sources:          sources,
		HelperProgram:    cfg.Credentials.HelperProgram,
		AltHelperProgram: cfg.Credentials.AltHelperProgram,
		OperationTimeout: cfg.Credentials.OperationTimeout,
		Logger:           log,
		Metrics:          metrics,
	})
	if err != nil {
		return err
	}

	svc.Reconcile()
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sync.ReconcileSchedule, svc.Reconcile); err != nil {
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:    cfg.Ops.ListenAddr,
		Handler: newRouter(svc, provisioner, st, metrics, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.Ops.ListenAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		cronCtx := scheduler.Stop()
		<-cronCtx.Done()
		svc.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("fedsyncd stopped")
	return nil
}
