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

// GetBalance returns the wallet balance, served from cache while fresh
func (s *WalletService) GetBalance(ctx context.Context, address string) (*models.WalletBalance, error) {
	if !chain.IsValidAddress(address) {
		return nil, fmt.Errorf("invalid wallet address")
	}

	if wb, ok := s.cache.Balance(ctx, address); ok {
		if wb.Asset == "" {
			wb.Asset = s.asset
		}
		return wb, nil
	}

	balance, err := s.backend.GetBalance(ctx, address)
	if err != nil {
		zap.L().Error("Failed to get wallet balance",
			zap.String("address", address),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}
	s.cache.StoreBalance(ctx, address, balance)

	return &models.WalletBalance{
		Address:   address,
		Asset:     s.asset,
		Balance:   balance,
		FetchedAt: s.now(),
	}, nil
}
