/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pix-deposit-go/internal/models"

	"go.uber.org/zap"
)

const (
	defaultBackendURL = "http://localhost:3000"
	defaultChainId    = 421614 // Arbitrum Sepolia
)

func Load() (*models.Config, error) {
	httpTimeout, err := getEnvDuration("HTTP_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := getEnvDuration("POLL_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 || pollTimeout <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL and POLL_TIMEOUT must be positive")
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	receiptTTL, err := getEnvDuration("RECEIPT_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	balanceStale, err := getEnvDuration("BALANCE_STALE_TIME", 15*time.Second)
	if err != nil {
		return nil, err
	}

	transactionsStale, err := getEnvDuration("TRANSACTIONS_STALE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	sessionGrace, err := getEnvDuration("SESSION_GRACE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	rpcURL := getEnvString("CHAIN_RPC_URL", "")
	if rpcURL == "" {
		zap.L().Error("CHAIN_RPC_URL is not set; set it to the target chain RPC endpoint to enable chain reads")
	}

	return &models.Config{
		Backend: models.BackendConfig{
			BaseURL:     strings.TrimRight(getEnvString("BACKEND_URL", defaultBackendURL), "/"),
			HTTPTimeout: httpTimeout,
		},
		Chain: models.ChainConfig{
			ChainId:       getEnvInt64("CHAIN_ID", defaultChainId),
			RPCURL:        rpcURL,
			TokenContract: getEnvString("TOKEN_CONTRACT_ADDRESS", ""),
			WalletAppId:   getEnvString("WALLET_APP_ID", ""),
			ExplorerTxURL: getEnvString("EXPLORER_TX_URL", "https://sepolia.arbiscan.io/tx/"),
		},
		Deposit: models.DepositConfig{
			Asset:       getEnvString("DEPOSIT_ASSET", "BRLA"),
			Network:     getEnvString("DEPOSIT_NETWORK", "ARBITRUM_SEPOLIA"),
			PolicyFile:  getEnvString("POLICY_FILE", "policy.yaml"),
			Description: getEnvString("DEPOSIT_DESCRIPTION", "Depósito para wallet cripto"),
			Beneficiary: getEnvString("DEPOSIT_BENEFICIARY", ""),
			WatchSource: getEnvString("WATCH_SOURCE", "backend"),
		},
		Watcher: models.WatcherConfig{
			PollInterval: pollInterval,
			Timeout:      pollTimeout,
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "receipts.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Receipts: models.ReceiptConfig{
			Backend: getEnvString("RECEIPT_STORE", "sqlite"),
			TTL:     receiptTTL,
		},
		Cache: models.CacheConfig{
			Backend:              getEnvString("CACHE_BACKEND", "memory"),
			RedisAddr:            getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword:        getEnvString("REDIS_PASSWORD", ""),
			BalanceStaleTime:     balanceStale,
			TransactionStaleTime: transactionsStale,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "pix-deposits"),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
			SweepInterval:   sweepInterval,
			SessionGrace:    sessionGrace,
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
