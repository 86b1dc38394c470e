package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pix-deposit-go/internal/api"
	"pix-deposit-go/internal/cache"
	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/database"
	"pix-deposit-go/internal/formance"
	"pix-deposit-go/internal/gateway"
	"pix-deposit-go/internal/metrics"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/policy"
	"pix-deposit-go/internal/receipt"
	"pix-deposit-go/internal/session"
	"pix-deposit-go/internal/store"
	"pix-deposit-go/internal/watcher"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Config       *models.Config
	Gateway      *gateway.Client
	CacheStore   cache.Store
	WalletCache  *cache.WalletCache
	ReceiptStore store.ReceiptStore
	Resolver     *receipt.Resolver
	Balances     watcher.BalanceSource
	Policy       *policy.Policy
	Wallets      *api.WalletService
	Metrics      metrics.Recorder

	tokenReader *chain.TokenBalanceReader
}

// InitializeLogger installs the global zap logger. level is parsed as a zap
// level name; unknown names fall back to info.
func InitializeLogger(level string) (*zap.Logger, func()) {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if err := atomicLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			log.Printf("Unknown LOG_LEVEL %q, using info\n", level)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the deposit flow collaborators from cfg. rec may
// be nil, in which case metrics are discarded.
func InitializeServices(ctx context.Context, cfg *models.Config, rec metrics.Recorder) (*Services, error) {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	p, err := LoadPolicy(cfg.Deposit.PolicyFile)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewClient(cfg, gateway.WithMetrics(rec))
	if err != nil {
		return nil, err
	}

	cacheStore, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	walletCache := cache.NewWalletCache(cacheStore, cfg.Cache)

	receipts, err := InitializeReceiptStore(ctx, cfg)
	if err != nil {
		cacheStore.Close()
		return nil, err
	}

	resolver := receipt.NewResolver(gw, receipts, cfg.Receipts.TTL, cfg.Chain.ExplorerTxURL)

	wallets, err := api.NewWalletService(gw, walletCache, receipts, resolver, cfg.Deposit.Asset)
	if err != nil {
		receipts.Close()
		cacheStore.Close()
		return nil, err
	}

	services := &Services{
		Config:       cfg,
		Gateway:      gw,
		CacheStore:   cacheStore,
		WalletCache:  walletCache,
		ReceiptStore: receipts,
		Resolver:     resolver,
		Balances:     gw,
		Policy:       p,
		Wallets:      wallets,
		Metrics:      rec,
	}

	if cfg.Deposit.WatchSource == "chain" {
		reader, err := initializeChainReader(ctx, cfg.Chain)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.tokenReader = reader
		services.Balances = reader
	}

	zap.L().Info("Services initialized",
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.String("receipt_store", cfg.Receipts.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("watch_source", cfg.Deposit.WatchSource),
		zap.String("min_amount", p.Min().String()),
		zap.String("max_amount", p.Max().String()))

	return services, nil
}

// InitializeReceiptStore opens the receipt handoff store selected by
// RECEIPT_STORE. Useful on its own for read-only receipt inspection.
func InitializeReceiptStore(ctx context.Context, cfg *models.Config) (store.ReceiptStore, error) {
	switch cfg.Receipts.Backend {
	case "", "sqlite":
		dbService, err := database.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return dbService, nil
	case "formance":
		zap.L().Info("Using Formance ledger for receipts", zap.String("ledger", cfg.Formance.LedgerName))
		fService, err := formance.NewService(ctx, cfg.Formance, cfg.Deposit.Asset)
		if err != nil {
			return nil, err
		}
		return fService, nil
	default:
		return nil, fmt.Errorf("unknown receipt store %q", cfg.Receipts.Backend)
	}
}

func initializeChainReader(ctx context.Context, cfg models.ChainConfig) (*chain.TokenBalanceReader, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required when WATCH_SOURCE=chain")
	}
	if cfg.TokenContract == "" {
		return nil, fmt.Errorf("TOKEN_CONTRACT_ADDRESS is required when WATCH_SOURCE=chain")
	}

	reader, err := chain.Dial(cfg.RPCURL, cfg.TokenContract)
	if err != nil {
		return nil, err
	}
	if err := reader.VerifyChain(ctx, cfg.ChainId); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

// SessionDeps builds the collaborators for deposit sessions
func (cs *Services) SessionDeps(notifier session.Notifier) session.Deps {
	return session.Deps{
		Charges:      cs.Gateway,
		Balances:     cs.Balances,
		Resolver:     cs.Resolver,
		Cache:        cs.WalletCache,
		BalanceCache: cs.WalletCache,
		Policy:       cs.Policy,
		Notifier:     notifier,
		Metrics:      cs.Metrics,
	}
}

// SessionConfig builds the session settings from the loaded configuration
func (cs *Services) SessionConfig() session.Config {
	return session.Config{
		Asset:        cs.Config.Deposit.Asset,
		Network:      cs.Config.Deposit.Network,
		ChainId:      cs.Config.Chain.ChainId,
		PollInterval: cs.Config.Watcher.PollInterval,
		Timeout:      cs.Config.Watcher.Timeout,
	}
}

func (cs *Services) Close() {
	if cs.tokenReader != nil {
		cs.tokenReader.Close()
	}
	if cs.ReceiptStore != nil {
		cs.ReceiptStore.Close()
	}
	if cs.CacheStore != nil {
		if err := cs.CacheStore.Close(); err != nil {
			zap.L().Warn("Failed to close cache store", zap.Error(err))
		}
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
