// vaultd serves the milestone escrow vault over HTTP: account registration,
// agreement lifecycle, settlement balances and protocol stats. State is
// rebuilt from the event journal on boot, so restarts lose nothing.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vaultflow/auth"
	"vaultflow/db"
	"vaultflow/escrow"
	"vaultflow/journal"
	"vaultflow/logger"
	"vaultflow/settle"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("vaultd: %v", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		stdlog.Fatalf("vaultd: build logger: %v", err)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Fatal("vaultd exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	vault, err := escrow.AddressFromString(cfg.VaultAddress)
	if err != nil {
		return fmt.Errorf("vaultd: vault address: %w", err)
	}
	owner, err := escrow.AddressFromString(cfg.OwnerAddress)
	if err != nil {
		return fmt.Errorf("vaultd: owner address: %w", err)
	}
	feeRecipient, err := escrow.AddressFromString(cfg.FeeRecipient)
	if err != nil {
		return fmt.Errorf("vaultd: fee recipient address: %w", err)
	}

	var (
		store  journal.Store
		ledger settle.Ledger
		users  auth.Repository
	)
	switch cfg.Store {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("vaultd: connect postgres: %w", err)
		}
		defer pool.Close()

		pgStore := journal.NewPGStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("vaultd: journal schema: %w", err)
		}
		pgLedger := settle.NewPGLedger(pool)
		if err := pgLedger.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("vaultd: ledger schema: %w", err)
		}
		repo := auth.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("vaultd: users schema: %w", err)
		}
		store, ledger, users = pgStore, pgLedger, repo

	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("vaultd: create data dir: %w", err)
		}
		sqliteStore, err := journal.OpenSQLite(filepath.Join(cfg.DataDir, "journal.db"))
		if err != nil {
			return fmt.Errorf("vaultd: open journal: %w", err)
		}
		defer sqliteStore.Close()
		sqliteLedger, err := settle.OpenSQLite(filepath.Join(cfg.DataDir, "ledger.db"))
		if err != nil {
			return fmt.Errorf("vaultd: open ledger: %w", err)
		}
		defer sqliteLedger.Close()
		repo, err := auth.OpenSQLite(filepath.Join(cfg.DataDir, "users.db"))
		if err != nil {
			return fmt.Errorf("vaultd: open users: %w", err)
		}
		defer repo.Close()
		store, ledger, users = sqliteStore, sqliteLedger, repo
	}

	if err := ledger.Open(ctx, vault); err != nil {
		return fmt.Errorf("vaultd: open vault account: %w", err)
	}

	jour := journal.New(store, log)
	events, err := jour.Load(ctx)
	if err != nil {
		return fmt.Errorf("vaultd: load journal: %w", err)
	}

	params := escrow.Params{
		Ticks:         escrow.TickFunc(func() uint64 { return uint64(time.Now().Unix()) }),
		Transfers:     settle.NewVaultTransferor(ledger, vault),
		FeeRecipient:  feeRecipient,
		Owner:         owner,
		MaxAgreements: cfg.MaxAgreements,
	}
	var engine *escrow.Engine
	if len(events) > 0 {
		engine, err = escrow.Rebuild(events, params)
		if err != nil {
			return fmt.Errorf("vaultd: rebuild from journal: %w", err)
		}
		log.Info("engine rebuilt from journal", zap.Int("events", len(events)))
	} else {
		engine, err = escrow.NewEngine(params)
		if err != nil {
			return fmt.Errorf("vaultd: new engine: %w", err)
		}
	}
	engine = engine.WithRecorder(jour)

	server := &Server{
		authService:   auth.NewService(users, cfg.JWTSecret),
		engine:        engine,
		ledger:        ledger,
		vault:         vault,
		owner:         owner,
		log:           log,
		faucetEnabled: cfg.FaucetEnabled,
		faucetAmount:  cfg.FaucetAmount,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jour.Run(gctx)
	})
	g.Go(func() error {
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("vaultd: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("vaultd listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
		zap.Bool("faucet", cfg.FaucetEnabled))

	return g.Wait()
}
