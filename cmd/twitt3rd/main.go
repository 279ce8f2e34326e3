package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"twitt3r/config"
	"twitt3r/core"
	"twitt3r/core/types"
	"twitt3r/crypto"
	"twitt3r/journal"
	"twitt3r/observability"
	"twitt3r/observability/logging"
	"twitt3r/rpc"
	"twitt3r/state"
	"twitt3r/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TWITT3R_ENV"))
	logger := logging.Setup("twitt3rd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	var eventJournal core.EventJournal
	if path := strings.TrimSpace(cfg.JournalPath); path != "" {
		store, err := journal.Open(path, nil)
		if err != nil {
			logger.Error("Failed to open event journal", slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		eventJournal = store
	}

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("Failed to load ledger state", slog.Any("error", err))
		os.Exit(1)
	}
	ledger, err := core.NewLedger(manager, logger, eventJournal)
	if err != nil {
		logger.Error("Failed to build ledger", slog.Any("error", err))
		os.Exit(1)
	}

	initialized, err := ledger.Initialized()
	if err != nil {
		logger.Error("Failed to probe genesis state", slog.Any("error", err))
		os.Exit(1)
	}
	if !initialized {
		if err := seedGenesis(ledger, cfg.Genesis); err != nil {
			logger.Error("Failed to seed genesis state", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Genesis state initialised", slog.String("owner", cfg.Genesis.Owner))
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(observability.Registry(), promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	server := rpc.NewServer(ledger)
	server.SetAllowedOrigins(cfg.RPCAllowedOrigins)
	logger.Info("Starting JSON-RPC server",
		slog.String("address", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func seedGenesis(ledger *core.Ledger, genesis config.Genesis) error {
	ownerStr := strings.TrimSpace(genesis.Owner)
	if ownerStr == "" {
		return fmt.Errorf("Genesis.Owner must be set on first boot")
	}
	owner, err := crypto.DecodeAddress(ownerStr)
	if err != nil {
		return fmt.Errorf("invalid Genesis.Owner: %w", err)
	}
	price, err := genesis.PriceAmount()
	if err != nil {
		return err
	}
	jackpot, err := genesis.JackpotAmount()
	if err != nil {
		return err
	}
	treasury, err := genesis.InitialTreasuryAmount()
	if err != nil {
		return err
	}
	settings := types.Settings{Odds: genesis.Odds, Price: price, Jackpot: jackpot}
	return ledger.InitGenesis(owner.Bytes(), settings, treasury)
}
