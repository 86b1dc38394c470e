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
	"time"

	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/common"
	"pix-deposit-go/internal/config"
	"pix-deposit-go/internal/models"

	"go.uber.org/zap"
)

type check struct {
	name string
	err  error
	note string
}

func checkReceiptStore(ctx context.Context, services *common.Services) check {
	return check{name: "receipt store (" + services.Config.Receipts.Backend + ")", err: services.Wallets.HealthCheck(ctx)}
}

func checkCache(ctx context.Context, services *common.Services) check {
	c := check{name: "cache (" + services.Config.Cache.Backend + ")"}
	if err := services.CacheStore.Set(ctx, "setup", "probe", []byte("ok"), time.Minute); err != nil {
		c.err = err
		return c
	}
	if _, err := services.CacheStore.Get(ctx, "setup", "probe"); err != nil {
		c.err = err
		return c
	}
	c.err = services.CacheStore.Delete(ctx, "setup", "probe")
	return c
}

// checkBackend reads a balance for probeAddress; a zero balance is fine
func checkBackend(ctx context.Context, services *common.Services, probeAddress string) check {
	c := check{name: "PIX backend " + services.Config.Backend.BaseURL}
	if probeAddress == "" {
		c.note = "skipped, pass -probe to read a balance"
		return c
	}
	balance, err := services.Gateway.GetBalance(ctx, probeAddress)
	c.err = err
	if err == nil {
		c.note = "balance " + balance.String()
	}
	return c
}

func checkChain(ctx context.Context, cfg models.ChainConfig) check {
	c := check{name: fmt.Sprintf("chain %d RPC", cfg.ChainId)}
	if cfg.RPCURL == "" || cfg.TokenContract == "" {
		c.note = "skipped, CHAIN_RPC_URL or TOKEN_CONTRACT_ADDRESS not set"
		return c
	}
	reader, err := chain.Dial(cfg.RPCURL, cfg.TokenContract)
	if err != nil {
		c.err = err
		return c
	}
	defer reader.Close()
	c.err = reader.VerifyChain(ctx, cfg.ChainId)
	return c
}

func printChecks(checks []check) int {
	failed := 0
	for i, c := range checks {
		status := "ok"
		if c.err != nil {
			status = "FAILED: " + c.err.Error()
			failed++
		} else if c.note != "" {
			status = "ok (" + c.note + ")"
		}
		fmt.Printf("%s %-45s %s\n", common.BoxPrefix(i == len(checks)-1), c.name, status)
	}
	return failed
}

func main() {
	initFlag := flag.Bool("init", false, "Prepare the receipt store and purge expired receipts")
	probeFlag := flag.String("probe", "", "Wallet address used to probe the backend balance endpoint")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// initializing services creates the sqlite schema or the Formance ledger
	services, err := common.InitializeServices(ctx, cfg, nil)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *initFlag {
		n, err := services.ReceiptStore.PurgeExpired(ctx)
		if err != nil {
			zap.L().Fatal("Failed to purge expired receipts", zap.Error(err))
		}
		zap.L().Info("Receipt store ready", zap.Int64("purged", n))
	}

	common.PrintHeader("PIX DEPOSIT SETUP CHECK", common.DefaultWidth)
	fmt.Printf("Deposit asset: %s on %s\n", cfg.Deposit.Asset, cfg.Deposit.Network)
	fmt.Printf("Amount limits: %s to %s\n", common.FormatBRL(services.Policy.Min()), common.FormatBRL(services.Policy.Max()))
	fmt.Printf("Polling:       every %s for up to %s\n\n", cfg.Watcher.PollInterval, cfg.Watcher.Timeout)

	failed := printChecks([]check{
		checkReceiptStore(ctx, services),
		checkCache(ctx, services),
		checkBackend(ctx, services, *probeFlag),
		checkChain(ctx, cfg.Chain),
	})

	if failed > 0 {
		common.PrintFooter(fmt.Sprintf("%d check(s) failed", failed), common.DefaultWidth)
		zap.L().Fatal("Setup check failed", zap.Int("failed", failed))
	}
	common.PrintFooter("All checks passed", common.DefaultWidth)
}
