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

package api

import (
	"context"
	"fmt"
	"time"

	"pix-deposit-go/internal/cache"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/shopspring/decimal"
)

// Backend is the subset of the PIX gateway the dashboard reads use
type Backend interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, address string) ([]models.Transaction, error)
}

// ReceiptLookup resolves a receipt by hash, consuming the handoff record
type ReceiptLookup interface {
	Lookup(ctx context.Context, address, txHash string) (*models.Receipt, error)
}

// WalletService serves the dashboard reads: balance, transaction history and
// receipts. Reads go through the shared wallet cache.
type WalletService struct {
	backend  Backend
	cache    *cache.WalletCache
	receipts store.ReceiptStore
	lookup   ReceiptLookup
	asset    string
	now      func() time.Time
}

func NewWalletService(backend Backend, walletCache *cache.WalletCache, receipts store.ReceiptStore, lookup ReceiptLookup, asset string) (*WalletService, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if walletCache == nil {
		return nil, fmt.Errorf("wallet cache is required")
	}
	return &WalletService{
		backend:  backend,
		cache:    walletCache,
		receipts: receipts,
		lookup:   lookup,
		asset:    asset,
		now:      time.Now,
	}, nil
}

// HealthCheck confirms the receipt store answers queries
func (s *WalletService) HealthCheck(ctx context.Context) error {
	if s.receipts == nil {
		return nil
	}
	if _, err := s.receipts.ListReceipts(ctx, "", 1); err != nil {
		return fmt.Errorf("receipt store health check failed: %w", err)
	}
	return nil
}
