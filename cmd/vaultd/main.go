package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"credvault/internal/biometric"
	"credvault/internal/bundle"
	"credvault/internal/minter"
	"credvault/internal/platform/config"
	"credvault/internal/platform/logger"
	"credvault/internal/platform/metrics"
	"credvault/internal/profile"
	"credvault/internal/refresh"
	httptransport "credvault/internal/transport/http"
	vaultservice "credvault/internal/vault/service"
	vaultstore "credvault/internal/vault/store"
	"credvault/internal/vault/workers/sweeper"
	"credvault/pkg/platform/audit"
	"credvault/pkg/platform/audit/publisher"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing credvault",
		"addr", cfg.Addr,
		"entry_ttl", cfg.EntryTTL,
		"max_unlock_attempts", cfg.MaxUnlockAttempts,
	)

	m := metrics.New()

	auditStore := audit.NewInMemoryStore()
	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithPublisherLogger(log),
	)
	defer auditor.Close()

	profiles := profile.NewInMemorySource()
	mint := minter.New(profiles,
		minter.WithBootstrapSubjects(cfg.BootstrapSubjects),
		minter.WithValidity(cfg.EntryTTL),
		minter.WithLogger(log),
	)

	exporter, err := bundle.NewExporter(cfg.ExportDir)
	if err != nil {
		log.Error("could not initialize bundle exporter", "error", err)
		os.Exit(1)
	}
	assembler := bundle.NewReferenceAssembler()

	entries := vaultstore.NewInMemoryStore(
		vaultstore.WithMaxAttempts(cfg.MaxUnlockAttempts),
		vaultstore.WithRefreshWarning(cfg.RefreshWarning),
	)
	vault := vaultservice.NewService(entries,
		vaultservice.WithAuditor(auditor),
		vaultservice.WithMetrics(m),
		vaultservice.WithExporter(exporter),
		vaultservice.WithEntryTTL(cfg.EntryTTL),
		vaultservice.WithLogger(log),
	)

	sessions := biometric.NewManager(
		biometric.WithSessionTTL(cfg.SessionTTL),
		biometric.WithLogger(log),
		biometric.WithAuditor(auditor),
		biometric.WithMetrics(m),
	)

	refresher := refresh.New(entries, mint, profiles, sessions, assembler,
		refresh.WithAuditor(auditor),
		refresh.WithMetrics(m),
		refresh.WithEntryTTL(cfg.EntryTTL),
		refresh.WithLogger(log),
	)

	sweep, err := sweeper.New(entries, sessions,
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithAuditor(auditor),
		sweeper.WithMetrics(m),
		sweeper.WithLogger(log),
	)
	if err != nil {
		log.Error("could not initialize sweeper", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(mint, vault, refresher, sessions, assembler, log)
	router := httptransport.NewRouter(handler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sweep.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
