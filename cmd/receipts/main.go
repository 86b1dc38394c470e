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
	"errors"
	"flag"
	"fmt"
	"time"

	"pix-deposit-go/internal/common"
	"pix-deposit-go/internal/config"
	"pix-deposit-go/internal/store"

	"go.uber.org/zap"
)

func receiptStatus(rec store.ReceiptRecord, now time.Time) string {
	switch {
	case rec.ConsumedAt != nil:
		return "consumed " + rec.ConsumedAt.Format("15:04:05")
	case rec.Expired(now):
		return "expired"
	default:
		return "live, expires in " + common.FormatCountdown(rec.ExpiresAt.Sub(now))
	}
}

func printReceipt(rec store.ReceiptRecord, isLast bool, now time.Time) {
	fmt.Printf("%s %-20s %14s  %s  (%s)\n",
		common.BoxPrefix(isLast),
		common.ShortHash(rec.TxHash),
		rec.Amount.String(),
		rec.Timestamp.Format("2006-01-02 15:04:05"),
		receiptStatus(rec, now))

	detail := common.BoxDetailPrefix(isLast)
	if rec.SessionId != "" {
		fmt.Printf("%s   session: %s\n", detail, rec.SessionId)
	}
	if rec.ChargeId != "" {
		fmt.Printf("%s   charge:  %s\n", detail, rec.ChargeId)
	}
	if rec.ExplorerURL != "" {
		fmt.Printf("%s   %s\n", detail, rec.ExplorerURL)
	}
}

func main() {
	ctx := context.Background()

	addressFlag := flag.String("address", "", "Wallet address to list receipts for")
	hashFlag := flag.String("hash", "", "Show a single receipt by transaction hash (does not consume it)")
	limitFlag := flag.Int("limit", 20, "Maximum receipts to list")
	purgeFlag := flag.Bool("purge", false, "Delete expired receipts before listing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	logger.Info("Opening receipt store", zap.String("backend", cfg.Receipts.Backend))
	receipts, err := common.InitializeReceiptStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize receipt store", zap.Error(err))
	}
	defer receipts.Close()

	if *purgeFlag {
		n, err := receipts.PurgeExpired(ctx)
		if err != nil {
			logger.Fatal("Failed to purge expired receipts", zap.Error(err))
		}
		logger.Info("Purged expired receipts", zap.Int64("count", n))
	}

	now := time.Now()

	if *hashFlag != "" {
		r, err := receipts.GetReceipt(ctx, *hashFlag)
		if errors.Is(err, store.ErrReceiptNotFound) {
			fmt.Printf("No receipt stored for %s\n", *hashFlag)
			return
		}
		if err != nil && !errors.Is(err, store.ErrReceiptExpired) && !errors.Is(err, store.ErrReceiptConsumed) {
			logger.Fatal("Failed to read receipt", zap.Error(err))
		}
		common.PrintHeader("RECEIPT", common.DefaultWidth)
		if err != nil {
			fmt.Printf("Status:   %s\n", err)
		}
		if r != nil {
			fmt.Printf("Tx hash:  %s\n", r.TxHash)
			fmt.Printf("Wallet:   %s\n", r.Address)
			fmt.Printf("Amount:   %s %s\n", r.Amount.String(), cfg.Deposit.Asset)
			fmt.Printf("Explorer: %s\n", r.ExplorerURL)
			fmt.Printf("Time:     %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
		}
		common.PrintFooter("", common.DefaultWidth)
		return
	}

	if *addressFlag == "" {
		logger.Fatal("Either -address or -hash is required")
	}

	records, err := receipts.ListReceipts(ctx, *addressFlag, *limitFlag)
	if err != nil {
		logger.Fatal("Failed to list receipts", zap.Error(err))
	}

	common.PrintHeader("RECEIPTS FOR "+*addressFlag, common.WideWidth)
	live := 0
	for i, rec := range records {
		printReceipt(rec, i == len(records)-1, now)
		if rec.ConsumedAt == nil && !rec.Expired(now) {
			live++
		}
	}
	common.PrintFooter(fmt.Sprintf("SUMMARY: %d receipts (%d live)", len(records), live), common.WideWidth)

	logger.Info("Receipt query completed",
		zap.String("address", *addressFlag),
		zap.Int("receipts", len(records)),
		zap.Int("live", live))
}
