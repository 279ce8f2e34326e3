package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress        string   `toml:"RPCAddress"`
	MetricsAddress    string   `toml:"MetricsAddress"`
	DataDir           string   `toml:"DataDir"`
	JournalPath       string   `toml:"JournalPath"`
	NetworkName       string   `toml:"NetworkName"`
	RPCAllowedOrigins []string `toml:"RPCAllowedOrigins"`
	Genesis           Genesis  `toml:"Genesis"`
}

// Genesis seeds the ledger on first boot: the owner address, the lottery
// settings, and an optional initial treasury so early winners can be paid. It
// is ignored once state exists.
type Genesis struct {
	Owner           string `toml:"Owner"`
	Odds            uint32 `toml:"Odds"`
	Price           string `toml:"Price"`
	Jackpot         string `toml:"Jackpot"`
	InitialTreasury string `toml:"InitialTreasury"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./twitt3r-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "twitt3r-local"
	}
	if cfg.RPCAllowedOrigins == nil {
		cfg.RPCAllowedOrigins = []string{}
	}
}

func validate(cfg *Config) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Genesis.Price", cfg.Genesis.Price},
		{"Genesis.Jackpot", cfg.Genesis.Jackpot},
		{"Genesis.InitialTreasury", cfg.Genesis.InitialTreasury},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := parseAmount(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Genesis: Genesis{
			Odds:    1,
			Price:   "1000000000000000",
			Jackpot: "100000000000000000",
		},
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PriceAmount parses the genesis price; empty means zero.
func (g Genesis) PriceAmount() (*big.Int, error) {
	return parseOptionalAmount(g.Price)
}

// JackpotAmount parses the genesis jackpot; empty means zero.
func (g Genesis) JackpotAmount() (*big.Int, error) {
	return parseOptionalAmount(g.Jackpot)
}

// InitialTreasuryAmount parses the genesis treasury; empty means zero.
func (g Genesis) InitialTreasuryAmount() (*big.Int, error) {
	return parseOptionalAmount(g.InitialTreasury)
}

func parseOptionalAmount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(value)
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	return amount, nil
}
