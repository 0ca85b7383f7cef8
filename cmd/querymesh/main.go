// Command querymesh runs the schema tracking and query routing server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/api"
	"github.com/querymesh/querymesh/internal/classify"
	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/db"
	"github.com/querymesh/querymesh/internal/db/migrations"
	"github.com/querymesh/querymesh/internal/dbpool"
	"github.com/querymesh/querymesh/internal/introspect"
	"github.com/querymesh/querymesh/internal/plan"
	"github.com/querymesh/querymesh/internal/store"
	"github.com/querymesh/querymesh/internal/watch"
	"github.com/querymesh/querymesh/internal/ws"
)

const version = "0.3.0"

const shutdownTimeout = 10 * time.Second

// watchStore combines the version and source stores into the single
// surface the watch manager and classifier read.
type watchStore struct {
	*store.VersionStore
	*store.SourceStore
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	base := store.Base{Pool: pool, Log: log, Events: hub}
	sources := &store.SourceStore{Base: base}
	versions := &store.VersionStore{Base: base}
	ontology := &store.OntologyStore{Base: base}

	combined := &watchStore{VersionStore: versions, SourceStore: sources}

	factory := &introspect.Factory{Log: log}
	manager := watch.NewManager(combined, sources, factory, log, cfg.PollInterval, 0)

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		manager.Stop(shutdownCtx)
	}()

	classifier := classify.New(combined, ontology, log, cfg.MaxFanout)
	builder := plan.NewBuilder(log)

	var optimizer plan.Optimizer
	if cfg.Optimizer == config.OptimizerLLM {
		optimizer = plan.NewLLMOptimizer(cfg.LLMURL, cfg.LLMModel, log)
	} else {
		optimizer = plan.NewRuleOptimizer(log)
	}

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Pool:        pool,
		Hub:         hub,
		Sources:     sources,
		Schemas:     versions,
		Ontology:    ontology,
		Watch:       manager,
		Classifier:  classifier,
		Builder:     builder,
		Optimizer:   optimizer,
		CORSOrigins: cfg.CORSOrigins,
		APIKey:      cfg.APIKey.Value(),
		Version:     version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.WithFields(logrus.Fields{
			"addr":      cfg.Addr(),
			"version":   version,
			"optimizer": cfg.Optimizer,
		}).Info("querymesh listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}

	hub.Shutdown()

	return nil
}
