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
	"errors"
	"fmt"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/receipt"
	"pix-deposit-go/internal/store"

	"go.uber.org/zap"
)

var ErrReceiptNotFound = errors.New("receipt not found")

// GetReceipt returns the receipt for txHash. The handoff record is read once;
// later reads fall back to the wallet's transaction list.
func (s *WalletService) GetReceipt(ctx context.Context, address, txHash string) (*models.Receipt, error) {
	if txHash == "" {
		return nil, fmt.Errorf("tx hash is required")
	}
	if s.lookup == nil {
		return nil, ErrReceiptNotFound
	}

	r, err := s.lookup.Lookup(ctx, address, txHash)
	if errors.Is(err, receipt.ErrNoReceipt) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		zap.L().Error("Failed to look up receipt",
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve receipt: %w", err)
	}
	return r, nil
}

// ListReceipts returns stored handoff records for address, newest first
func (s *WalletService) ListReceipts(ctx context.Context, address string, limit int) ([]store.ReceiptRecord, error) {
	if s.receipts == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	records, err := s.receipts.ListReceipts(ctx, address, limit)
	if err != nil {
		zap.L().Error("Failed to list receipts", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return records, nil
}
