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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) SaveReceipt(ctx context.Context, receipt *models.Receipt, ttl time.Duration) error {
	if receipt == nil || receipt.TxHash == "" {
		return fmt.Errorf("receipt with a tx hash is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("receipt ttl must be positive, got %v", ttl)
	}

	now := s.now()
	sessionId := receipt.SessionId
	chargeId := ""
	if dc := models.GetDepositContext(ctx); dc != nil {
		if sessionId == "" {
			sessionId = dc.SessionId
		}
		chargeId = dc.ChargeId
	}

	_, err := s.db.ExecContext(ctx, queryUpsertReceipt,
		uuid.New().String(),
		receipt.TxHash,
		receipt.Address,
		receipt.Amount.String(),
		receipt.ExplorerURL,
		receipt.Timestamp.UnixMilli(),
		sessionId,
		chargeId,
		now.UnixMilli(),
		now.Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("unable to save receipt: %w", err)
	}

	zap.L().Info("Receipt saved",
		zap.String("tx_hash", receipt.TxHash),
		zap.String("address", receipt.Address),
		zap.String("session_id", sessionId),
		zap.Duration("ttl", ttl))
	return nil
}

func (s *Service) GetReceipt(ctx context.Context, txHash string) (*models.Receipt, error) {
	rec, err := s.getRecord(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if rec.ConsumedAt != nil {
		return nil, store.ErrReceiptConsumed
	}
	if rec.Expired(s.now()) {
		return nil, store.ErrReceiptExpired
	}
	r := rec.Receipt
	return &r, nil
}

func (s *Service) TakeReceipt(ctx context.Context, txHash string) (*models.Receipt, error) {
	now := s.now()

	res, err := s.db.ExecContext(ctx, queryConsumeReceipt, now.UnixMilli(), txHash, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("unable to consume receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to consume receipt: %w", err)
	}

	rec, err := s.getRecord(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if rec.ConsumedAt != nil {
			return nil, store.ErrReceiptConsumed
		}
		return nil, store.ErrReceiptExpired
	}

	zap.L().Debug("Receipt consumed", zap.String("tx_hash", txHash))
	r := rec.Receipt
	return &r, nil
}

func (s *Service) ListReceipts(ctx context.Context, address string, limit int) ([]store.ReceiptRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, queryListReceipts, address, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to list receipts: %w", err)
	}
	defer rows.Close()

	var out []store.ReceiptRecord
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to list receipts: %w", err)
	}
	return out, nil
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryPurgeExpired, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("unable to purge receipts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unable to purge receipts: %w", err)
	}
	if n > 0 {
		zap.L().Info("Purged expired receipts", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) getRecord(ctx context.Context, txHash string) (*store.ReceiptRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetReceipt, txHash)
	rec, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReceiptNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*store.ReceiptRecord, error) {
	var (
		rec        store.ReceiptRecord
		amount     string
		txTime     int64
		createdAt  int64
		expiresAt  int64
		consumedAt sql.NullInt64
	)

	err := row.Scan(
		&rec.TxHash,
		&rec.Address,
		&amount,
		&rec.ExplorerURL,
		&txTime,
		&rec.SessionId,
		&rec.ChargeId,
		&createdAt,
		&expiresAt,
		&consumedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("unable to scan receipt: %w", err)
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	rec.Timestamp = time.UnixMilli(txTime).UTC()
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if consumedAt.Valid {
		t := time.UnixMilli(consumedAt.Int64).UTC()
		rec.ConsumedAt = &t
	}
	return &rec, nil
}
