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
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/common"
	"pix-deposit-go/internal/config"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readAmount loops until the policy accepts an amount
func readAmount(in *bufio.Reader, sess *session.Session, initial string) (models.FeeQuote, error) {
	raw := initial
	for {
		if raw == "" {
			var err error
			raw, err = prompt(in, "Amount in BRL: ")
			if err != nil {
				return models.FeeQuote{}, err
			}
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		raw = ""
		if err != nil {
			fmt.Println("  Enter a valid amount")
			continue
		}
		quote, err := sess.SetAmount(amount)
		if err != nil {
			fmt.Printf("  %s\n", session.UserMessage(err))
			continue
		}
		return quote, nil
	}
}

func printQuote(q models.FeeQuote) {
	fmt.Printf("%s Amount: %s\n", common.BoxPrefix(false), common.FormatBRL(q.AmountBRL))
	fmt.Printf("%s Fee:    %s\n", common.BoxPrefix(false), common.FormatBRL(q.Fee))
	fmt.Printf("%s Total:  %s\n", common.BoxPrefix(true), common.FormatBRL(q.Total))
}

func printCharge(c *models.PixCharge) {
	common.PrintHeader("PIX CHARGE", common.DefaultWidth)
	fmt.Printf("Pay %s with the PIX copy-and-paste code below\n\n", common.FormatBRL(c.AmountBRL))
	fmt.Println(c.BRCode)
	fmt.Println()
	if c.PaymentLinkURL != "" {
		fmt.Printf("Payment link: %s\n", c.PaymentLinkURL)
	}
	if c.BeneficiaryName != "" {
		fmt.Printf("Beneficiary:  %s\n", c.BeneficiaryName)
	}
	fmt.Printf("Charge id:    %s\n", c.TransactionId)
	fmt.Printf("Expires in:   %s\n", common.FormatCountdown(c.TimeLeft(time.Now())))
}

// waitForOutcome prints session events until the session reaches a final state
func waitForOutcome(ctx context.Context, events <-chan session.Event) *session.Event {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.Type {
			case session.EventStateChanged:
				if e.State == session.StateWatchingBalance {
					fmt.Println("Waiting for your deposit to arrive...")
				}
			case session.EventChargeExpired:
				fmt.Printf("! %s\n", e.Message)
			case session.EventSuccess, session.EventTimeout:
				return &e
			case session.EventError:
				if e.State == session.StateFailed {
					return &e
				}
				fmt.Printf("! %s\n", e.Message)
			}
		}
	}
}

func main() {
	addressFlag := flag.String("address", "", "Wallet address to credit (required)")
	amountFlag := flag.String("amount", "", "Deposit amount in BRL (prompted when empty)")
	chainFlag := flag.Int64("chain", 0, "Wallet chain id (defaults to CHAIN_ID)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if !chain.IsValidAddress(*addressFlag) {
		zap.L().Fatal("A valid wallet address is required", zap.String("address", *addressFlag))
	}
	chainId := *chainFlag
	if chainId == 0 {
		chainId = cfg.Chain.ChainId
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg, nil)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	events := session.NewChannelNotifier(64)
	wallet := models.StaticWallet{Addr: chain.NormalizeAddress(*addressFlag), Chain: chainId, Connect: true}
	sess, err := session.New(wallet, services.SessionDeps(events), services.SessionConfig())
	if err != nil {
		zap.L().Fatal("Failed to create deposit session", zap.Error(err))
	}
	defer sess.Close()

	if err := sess.Begin(); err != nil {
		fmt.Println(session.UserMessage(err))
		os.Exit(1)
	}

	in := bufio.NewReader(os.Stdin)
	common.PrintHeader("PIX DEPOSIT", common.DefaultWidth)
	fmt.Printf("Wallet: %s\n", wallet.Address())
	fmt.Printf("Limits: %s to %s\n\n", common.FormatBRL(services.Policy.Min()), common.FormatBRL(services.Policy.Max()))

	var charge *models.PixCharge
	initial := *amountFlag
	for charge == nil {
		quote, err := readAmount(in, sess, initial)
		if err != nil {
			zap.L().Fatal("Failed to read amount", zap.Error(err))
		}
		initial = ""
		printQuote(quote)

		fmt.Println("\nGenerating PIX charge...")
		charge, err = sess.GenerateCharge(ctx)
		if err != nil {
			fmt.Printf("! %s\n\n", session.UserMessage(err))
		}
	}
	printCharge(charge)

	answer, err := prompt(in, "\nPress Enter once you have paid, or type c to cancel: ")
	if err != nil {
		zap.L().Fatal("Failed to read input", zap.Error(err))
	}
	if strings.EqualFold(answer, "c") {
		if err := sess.Cancel(); err != nil {
			fmt.Println(session.UserMessage(err))
		}
		common.PrintFooter("Deposit cancelled", common.DefaultWidth)
		return
	}

	if err := sess.MarkPaid(ctx); err != nil {
		fmt.Println(session.UserMessage(err))
		os.Exit(1)
	}

	outcome := waitForOutcome(ctx, events.C)
	if outcome == nil {
		common.PrintFooter("Deposit closed before confirmation", common.DefaultWidth)
		return
	}

	switch outcome.Type {
	case session.EventSuccess:
		common.PrintHeader("DEPOSIT CONFIRMED", common.DefaultWidth)
		if outcome.Delta != nil {
			fmt.Printf("Credited: %s\n", common.FormatAsset(*outcome.Delta, cfg.Deposit.Asset))
		}
		if r := outcome.Receipt; r != nil {
			fmt.Printf("Tx hash:  %s\n", r.TxHash)
			if r.ExplorerURL != "" {
				fmt.Printf("Explorer: %s\n", r.ExplorerURL)
			}
			fmt.Printf("Time:     %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
		}
		common.PrintFooter(outcome.Message, common.DefaultWidth)
	default:
		common.PrintFooter(outcome.Message, common.DefaultWidth)
	}
}
