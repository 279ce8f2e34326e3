package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("unexpected default RPC address %q", cfg.RPCAddress)
	}
	if cfg.Genesis.Odds != 1 {
		t.Fatalf("unexpected default odds %d", cfg.Genesis.Odds)
	}
	price, err := cfg.Genesis.PriceAmount()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(big.NewInt(1_000_000_000_000_000)) != 0 {
		t.Fatalf("unexpected default price %s", price)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPCAddress != cfg.RPCAddress || reloaded.Genesis.Price != cfg.Genesis.Price {
		t.Fatalf("reload mismatch: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
RPCAddress = ":9999"
MetricsAddress = ":9100"
DataDir = "/tmp/ledger"
JournalPath = "/tmp/ledger/events.db"
RPCAllowedOrigins = ["https://app.example.com"]

[Genesis]
Owner = "twt1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq8e8tqp"
Odds = 5
Price = "20"
Jackpot = "500"
InitialTreasury = "1000"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9999" || cfg.MetricsAddress != ":9100" {
		t.Fatalf("addresses not honoured: %+v", cfg)
	}
	if cfg.NetworkName != "twitt3r-local" {
		t.Fatalf("missing fields must fall back to defaults, got %q", cfg.NetworkName)
	}
	treasury, err := cfg.Genesis.InitialTreasuryAmount()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if treasury.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected treasury %s", treasury)
	}
}

func TestLoadRejectsBadAmounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[Genesis]
Price = "not-a-number"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed amount")
	}

	negative := `
[Genesis]
Jackpot = "-5"
`
	if err := os.WriteFile(path, []byte(negative), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestEmptyAmountsMeanZero(t *testing.T) {
	var g Genesis
	for _, parse := range []func() (*big.Int, error){g.PriceAmount, g.JackpotAmount, g.InitialTreasuryAmount} {
		amount, err := parse()
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if amount.Sign() != 0 {
			t.Fatalf("expected zero, got %s", amount)
		}
	}
}
