package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of vaultd, loaded from the
// environment. Store selects the persistence backend: "postgres" keeps the
// journal, ledger and accounts in one Postgres database (DatabaseURL),
// "sqlite" keeps them in per-concern files under DataDir.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogMode  string `env:"LOG_MODE" envDefault:"dev"`

	Store       string `env:"VAULT_STORE" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"VAULT_DATA_DIR" envDefault:"data"`

	JWTSecret string `env:"JWT_SECRET,notEmpty"`

	// VaultAddress is the ledger account holding all escrowed funds.
	// OwnerAddress holds the fee-recipient rotation capability and
	// FeeRecipient receives protocol fees until rotated.
	VaultAddress  string `env:"VAULT_ADDRESS" envDefault:"VAULT-TREASURY"`
	OwnerAddress  string `env:"VAULT_OWNER" envDefault:"VAULT-OWNER"`
	FeeRecipient  string `env:"VAULT_FEE_RECIPIENT" envDefault:"VAULT-FEES"`
	MaxAgreements int    `env:"VAULT_MAX_AGREEMENTS"`

	// FaucetEnabled opens POST /api/faucet, which credits the caller's
	// account out of thin air. Development only.
	FaucetEnabled bool   `env:"FAUCET_ENABLED" envDefault:"false"`
	FaucetAmount  uint64 `env:"FAUCET_AMOUNT" envDefault:"1000000"`

	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("vaultd: parse env: %w", err)
	}
	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("vaultd: VAULT_STORE=postgres requires DATABASE_URL")
		}
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("vaultd: unknown VAULT_STORE %q", cfg.Store)
	}
	return cfg, nil
}
