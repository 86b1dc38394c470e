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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"pix-deposit-go/internal/common"
	"pix-deposit-go/internal/config"
	"pix-deposit-go/internal/models"

	"go.uber.org/zap"
)

type historyStats struct {
	deposits int
	pending  int
}

func printTransaction(tx models.Transaction, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-10s %-17s %14s %-6s %-8s %s\n",
		symbol,
		tx.Type,
		common.ShortHash(tx.Hash),
		tx.AmountAsset.String(),
		tx.Asset,
		tx.Status,
		tx.CreatedAt.Format("2006-01-02 15:04:05"))
	if tx.ExplorerURL != "" && tx.ExplorerURL != "#" {
		fmt.Printf("%s   %s\n", common.BoxDetailPrefix(isLast), tx.ExplorerURL)
	}
}

func printTransactions(txs []models.Transaction) historyStats {
	stats := historyStats{}
	for i, tx := range txs {
		printTransaction(tx, i == len(txs)-1)
		if strings.EqualFold(tx.Type, "deposit") {
			stats.deposits++
		}
		if tx.Status == models.TransactionPending {
			stats.pending++
		}
	}
	return stats
}

func main() {
	ctx := context.Background()

	addressFlag := flag.String("address", "", "Wallet address to report on (required)")
	limitFlag := flag.Int("limit", 10, "Number of recent transactions to show")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if *addressFlag == "" {
		logger.Fatal("-address is required")
	}

	logger.Info("Starting wallet report", zap.String("address", *addressFlag))

	services, err := common.InitializeServices(ctx, cfg, nil)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	balance, err := services.Wallets.GetBalance(ctx, *addressFlag)
	if err != nil {
		logger.Fatal("Failed to get balance", zap.Error(err))
	}
	history, err := services.Wallets.GetTransactions(ctx, *addressFlag, *limitFlag)
	if err != nil {
		logger.Fatal("Failed to get transactions", zap.Error(err))
	}

	common.PrintHeader("WALLET REPORT", common.WideWidth)
	fmt.Printf("\n┌─ Wallet: %s\n", balance.Address)
	fmt.Printf("│  Balance: %s\n", common.FormatAsset(balance.Balance, balance.Asset))
	fmt.Printf("│  Transactions: %d\n", len(history.Transactions))
	common.PrintBoxSeparator(98)

	stats := printTransactions(history.Transactions)

	summary := fmt.Sprintf("SUMMARY: %d transactions shown (%d deposits, %d pending)",
		len(history.Transactions), stats.deposits, stats.pending)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Wallet report completed",
		zap.String("address", balance.Address),
		zap.String("balance", balance.Balance.String()),
		zap.Int("transactions", len(history.Transactions)))
}
