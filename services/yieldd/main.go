package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"netyield/config"
	"netyield/crypto"
	"netyield/native/token"
	"netyield/native/treasury"
	"netyield/native/yield"
	"netyield/observability/logging"
	"netyield/services/yieldd/server"
	"netyield/state"
	"netyield/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to yieldd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	logger := logging.Setup("yieldd", cfg.Env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	mgr := state.NewManager(db)

	ledger := token.NewLedger(cfg.Ledger.TokenSymbol)
	ledger.SetState(mgr)
	ledger.SetPauses(mgr)

	registry := treasury.NewRegistry()

	engine := yield.NewEngine()
	engine.SetState(mgr)
	engine.SetToken(ledger)
	engine.SetTreasuryLookup(registry)
	engine.SetRoles(mgr)
	engine.SetPauses(mgr)

	if err := bootstrap(mgr, engine, cfg); err != nil {
		log.Fatalf("bootstrap ledger: %v", err)
	}

	srv := server.New(mgr, engine, ledger, registry, logger, adminSecretFromEnv())
	srv.SetRateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("yieldd listening", "address", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}

// bootstrap initializes the ledger on first start and seeds capability roles
// from the config. Role seeding is idempotent, so restarting with the same
// config is a no-op.
func bootstrap(mgr *state.Manager, engine *yield.Engine, cfg *config.Config) error {
	mgr.Begin()
	ok := false
	defer func() {
		if !ok {
			mgr.Discard()
		}
	}()

	existing, err := mgr.YieldLedger()
	if err != nil {
		return err
	}
	if existing == nil {
		asset, err := cfg.UnderlyingAssetAddress()
		if err != nil {
			return err
		}
		if err := engine.Initialize(asset); err != nil {
			return err
		}
	}

	for role, members := range map[string][]string{
		yield.RoleOwner:   cfg.Roles.Owners,
		yield.RoleMinter:  cfg.Roles.Minters,
		yield.RoleManager: cfg.Roles.Managers,
	} {
		for _, entry := range members {
			addr, err := crypto.DecodeAddress(entry)
			if err != nil {
				return err
			}
			if err := mgr.SetRole(role, addr.Bytes()); err != nil {
				return err
			}
		}
	}

	if err := mgr.Commit(); err != nil {
		return err
	}
	ok = true
	return nil
}
