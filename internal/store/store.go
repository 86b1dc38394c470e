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

package store

import (
	"context"
	"errors"
	"time"

	"pix-deposit-go/internal/models"
)

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrReceiptExpired  = errors.New("receipt expired")
	ErrReceiptConsumed = errors.New("receipt already consumed")
)

// ReceiptRecord is a stored receipt plus its handoff bookkeeping.
type ReceiptRecord struct {
	models.Receipt
	ChargeId   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the handoff window has closed at now
func (r *ReceiptRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ReceiptStore defines the contract that every receipt handoff backend
// (SQLite, Formance, ...) must satisfy.
type ReceiptStore interface {
	// SaveReceipt writes or replaces the receipt keyed by its tx hash. The
	// record stops being readable after ttl.
	SaveReceipt(ctx context.Context, receipt *models.Receipt, ttl time.Duration) error

	// GetReceipt reads a live receipt without consuming it.
	GetReceipt(ctx context.Context, txHash string) (*models.Receipt, error)

	// TakeReceipt reads a live receipt and marks it consumed. A second take
	// fails with ErrReceiptConsumed.
	TakeReceipt(ctx context.Context, txHash string) (*models.Receipt, error)

	// ListReceipts returns every record for address, newest first,
	// including expired and consumed ones.
	ListReceipts(ctx context.Context, address string, limit int) ([]ReceiptRecord, error)

	// PurgeExpired deletes records whose window closed before now.
	PurgeExpired(ctx context.Context) (int64, error)

	Close()
}
