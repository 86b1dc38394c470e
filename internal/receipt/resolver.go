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

package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoReceipt means no transaction could be associated with the credit
var ErrNoReceipt = errors.New("no transaction found for receipt")

// TransactionSource lists wallet transactions, most recent first
type TransactionSource interface {
	GetTransactions(ctx context.Context, address string) ([]models.Transaction, error)
}

// Resolver turns a credited balance delta into a persisted receipt
type Resolver struct {
	txs           TransactionSource
	store         store.ReceiptStore
	ttl           time.Duration
	explorerTxURL string
}

func NewResolver(txs TransactionSource, st store.ReceiptStore, ttl time.Duration, explorerTxURL string) *Resolver {
	return &Resolver{
		txs:           txs,
		store:         st,
		ttl:           ttl,
		explorerTxURL: explorerTxURL,
	}
}

// Resolve builds the receipt from the most recent transaction and writes the
// handoff record. The record is written before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, address string, delta decimal.Decimal) (*models.Receipt, error) {
	txs, err := r.txs.GetTransactions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, ErrNoReceipt
	}

	tx := txs[0]
	if !tx.AmountAsset.Equal(delta) {
		zap.L().Warn("Most recent transaction does not match credited delta",
			zap.String("address", address),
			zap.String("tx_hash", tx.Hash),
			zap.String("amount", tx.AmountAsset.String()),
			zap.String("delta", delta.String()))
	}

	receipt := r.toReceipt(address, tx)
	if !receipt.Amount.IsPositive() {
		receipt.Amount = delta
	}
	if dc := models.GetDepositContext(ctx); dc != nil {
		receipt.SessionId = dc.SessionId
	}

	if r.store != nil {
		if err := r.store.SaveReceipt(ctx, receipt, r.ttl); err != nil {
			return nil, fmt.Errorf("unable to save receipt: %w", err)
		}
	}

	zap.L().Info("Receipt resolved",
		zap.String("address", address),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("amount", receipt.Amount.String()),
		zap.String("delta", delta.String()))

	return receipt, nil
}

func (r *Resolver) toReceipt(address string, tx models.Transaction) *models.Receipt {
	amount := tx.AmountAsset
	if tx.AmountBRL != nil {
		amount = *tx.AmountBRL
	}

	explorer := tx.ExplorerURL
	if explorer == "" && r.explorerTxURL != "" && tx.Hash != "" {
		explorer = strings.TrimRight(r.explorerTxURL, "/") + "/" + tx.Hash
	}

	return &models.Receipt{
		TxHash:      tx.Hash,
		Address:     address,
		Amount:      amount,
		ExplorerURL: explorer,
		Timestamp:   tx.CreatedAt,
	}
}

// Lookup returns the receipt for txHash. The handoff record is consumed if
// present; otherwise the wallet's transaction list is scanned for the hash.
func (r *Resolver) Lookup(ctx context.Context, address, txHash string) (*models.Receipt, error) {
	if txHash == "" {
		return nil, ErrNoReceipt
	}

	if r.store != nil {
		rec, err := r.store.TakeReceipt(ctx, txHash)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrReceiptNotFound) &&
			!errors.Is(err, store.ErrReceiptExpired) &&
			!errors.Is(err, store.ErrReceiptConsumed) {
			zap.L().Warn("Receipt store read failed, falling back to transaction list",
				zap.String("tx_hash", txHash),
				zap.Error(err))
		}
	}

	if address == "" {
		return nil, ErrNoReceipt
	}

	txs, err := r.txs.GetTransactions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch transactions: %w", err)
	}
	for _, tx := range txs {
		if strings.EqualFold(tx.Hash, txHash) {
			return r.toReceipt(address, tx), nil
		}
	}
	return nil, ErrNoReceipt
}
