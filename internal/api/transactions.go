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

	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/models"

	"go.uber.org/zap"
)

// GetTransactions returns recent wallet transactions, most recent first.
// limit <= 0 returns the full list.
func (s *WalletService) GetTransactions(ctx context.Context, address string, limit int) (*models.TransactionHistory, error) {
	if !chain.IsValidAddress(address) {
		return nil, fmt.Errorf("invalid wallet address")
	}

	history := &models.TransactionHistory{Address: address}
	if txs, ok := s.cache.Transactions(ctx, address); ok {
		history.Transactions = txs
		history.Cached = true
	} else {
		txs, err := s.backend.GetTransactions(ctx, address)
		if err != nil {
			zap.L().Error("Failed to get wallet transactions",
				zap.String("address", address),
				zap.Error(err))
			return nil, fmt.Errorf("failed to retrieve transactions: %w", err)
		}
		s.cache.StoreTransactions(ctx, address, txs)
		history.Transactions = txs
	}

	if limit > 0 && len(history.Transactions) > limit {
		history.Transactions = history.Transactions[:limit]
	}
	if history.Transactions == nil {
		history.Transactions = []models.Transaction{}
	}
	return history, nil
}
