package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Backend  BackendConfig
	Chain    ChainConfig
	Deposit  DepositConfig
	Watcher  WatcherConfig
	Database DatabaseConfig
	Receipts ReceiptConfig
	Cache    CacheConfig
	Formance FormanceConfig
	Server   ServerConfig
	LogLevel string
}

// BackendConfig holds the PIX backend connection settings
type BackendConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

// ChainConfig describes the target rollup network the wallet must be on
type ChainConfig struct {
	ChainId       int64
	RPCURL        string
	TokenContract string
	WalletAppId   string
	ExplorerTxURL string
}

// DepositConfig holds the deposit flow defaults
type DepositConfig struct {
	Asset       string
	Network     string
	PolicyFile  string
	Description string
	Beneficiary string
	WatchSource string // "backend" or "chain"
}

// WatcherConfig holds balance polling settings
type WatcherConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ReceiptConfig selects the receipt handoff backend
type ReceiptConfig struct {
	Backend string // "sqlite" or "formance"
	TTL     time.Duration
}

// CacheConfig selects the shared balance/transactions cache
type CacheConfig struct {
	Backend              string // "memory" or "redis"
	RedisAddr            string
	RedisPassword        string
	BalanceStaleTime     time.Duration
	TransactionStaleTime time.Duration
}

// FormanceConfig holds Formance Stack credentials for the ledger backed receipt store
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	SweepInterval   time.Duration
	SessionGrace    time.Duration // finished sessions are kept this long
}

// AmountPolicy holds deposit bounds and fee parameters
type AmountPolicy struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	MinFee    decimal.Decimal
	FeeRate   decimal.Decimal
}
