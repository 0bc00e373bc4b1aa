// escrowd is the marketplace escrow orchestrator daemon. It serves the
// JSON API, runs the notification dispatcher and the drift reconciler, and
// holds the single chain client used for all escrow program calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/coduet-labs/escrow-layer/internal/chain"
	"github.com/coduet-labs/escrow-layer/internal/config"
	"github.com/coduet-labs/escrow-layer/internal/escrow"
	"github.com/coduet-labs/escrow-layer/internal/httpapi"
	"github.com/coduet-labs/escrow-layer/internal/metrics"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
	"github.com/coduet-labs/escrow-layer/internal/storage/memory"
	"github.com/coduet-labs/escrow-layer/internal/storage/postgres"
	"github.com/coduet-labs/escrow-layer/internal/system"
	"github.com/coduet-labs/escrow-layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/escrowd.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	}).WithComponent("escrowd")

	index, outbox, cleanup, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := chain.NewClient(chain.Config{
		RPCURL:            cfg.Chain.RPCURL,
		ProgramID:         cfg.Chain.ProgramID,
		Timeout:           cfg.Chain.Timeout,
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
		Burst:             cfg.Chain.Burst,
	})
	if err != nil {
		return fmt.Errorf("chain client: %w", err)
	}

	vault, err := parseVault(cfg.Chain)
	if err != nil {
		return err
	}

	svc := escrow.New(client, index, outbox, vault, log.WithComponent("escrow"))

	dispatcher := notify.NewDispatcher(outbox, notify.NewLogSink(nil), log.WithComponent("notify"))
	dispatcher.Tune(cfg.Dispatch.Interval, cfg.Dispatch.MaxAttempts, cfg.Dispatch.BatchSize)
	reconciler := escrow.NewReconciler(client, index, cfg.Reconcile.Interval, log.WithComponent("reconciler"))

	services := []system.Service{dispatcher, reconciler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.New(svc, metrics.Handler(), log.WithComponent("httpapi")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log.Warnf("stop %s: %v", services[i].Name(), err)
		}
	}
	return nil
}

// buildStores selects the postgres index when a database URL is configured,
// otherwise the in-memory store. Both back the notification outbox too.
func buildStores(cfg *config.Config, log *logger.Logger) (storage.Index, notify.OutboxStore, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, using in-memory index")
		mem := memory.New()
		return mem, mem, func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	return store, store, func() { db.Close() }, nil
}

func parseVault(cfg config.ChainConfig) (chain.VaultHandle, error) {
	vault, err := chain.ParseAddress(cfg.MainVault)
	if err != nil {
		return chain.VaultHandle{}, fmt.Errorf("chain.main_vault: %w", err)
	}
	feeRecipient, err := chain.ParseAddress(cfg.PlatformFeeRecipient)
	if err != nil {
		return chain.VaultHandle{}, fmt.Errorf("chain.platform_fee_recipient: %w", err)
	}
	return chain.VaultHandle{Vault: vault, FeeRecipient: feeRecipient}, nil
}
