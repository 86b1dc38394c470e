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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance is the dashboard view of a wallet balance
type WalletBalance struct {
	Address   string          `json:"address"`
	Asset     string          `json:"asset"`
	Balance   decimal.Decimal `json:"balance"`
	FetchedAt time.Time       `json:"fetched_at"`
	Cached    bool            `json:"cached"`
}

// TransactionHistory is the dashboard view of recent wallet transactions
type TransactionHistory struct {
	Address      string        `json:"address"`
	Transactions []Transaction `json:"transactions"`
	Cached       bool          `json:"cached"`
}
