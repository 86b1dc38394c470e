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

package formance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Numscript: record a credited PIX deposit against the wallet account.
const numscriptDepositCredit = `vars {
  asset $asset
  number $amount
  account $wallet
  string $tx_hash
  string $session_id
  string $charge_id
}

send [$asset $amount] (
  source = @world
  destination = $wallet
)

set_tx_meta("event_type", "PIX_DEPOSIT_CREDITED")
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("session_id", $session_id)
set_tx_meta("charge_id", $charge_id)
`

const (
	metaTxHash     = "tx_hash"
	metaWallet     = "wallet_address"
	metaAmount     = "amount"
	metaExplorer   = "explorer"
	metaTimestamp  = "tx_timestamp"
	metaSessionId  = "session_id"
	metaChargeId   = "charge_id"
	metaCreatedAt  = "created_at"
	metaExpiresAt  = "expires_at"
	metaConsumedAt = "consumed_at"
)

func receiptAccount(txHash string) string {
	return "receipts:" + strings.ToLower(txHash)
}

func walletAccount(address string) string {
	return "wallets:" + strings.ToLower(address)
}

func (s *Service) SaveReceipt(ctx context.Context, receipt *models.Receipt, ttl time.Duration) error {
	if receipt == nil || receipt.TxHash == "" {
		return fmt.Errorf("receipt with a tx hash is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("receipt ttl must be positive, got %v", ttl)
	}

	now := s.now().UTC()
	rec := store.ReceiptRecord{
		Receipt:   *receipt,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if dc := models.GetDepositContext(ctx); dc != nil {
		if rec.SessionId == "" {
			rec.SessionId = dc.SessionId
		}
		rec.ChargeId = dc.ChargeId
	}

	if err := s.postCredit(ctx, &rec); err != nil {
		return err
	}

	_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:      s.ledger,
		Address:     receiptAccount(receipt.TxHash),
		RequestBody: recordToMeta(&rec),
	})
	if err != nil {
		return fmt.Errorf("failed to write receipt metadata: %w", err)
	}

	zap.L().Info("Receipt saved in Formance",
		zap.String("account", receiptAccount(receipt.TxHash)),
		zap.String("address", receipt.Address),
		zap.String("session_id", rec.SessionId),
		zap.Duration("ttl", ttl))
	return nil
}

// postCredit records the deposit movement once per tx hash
func (s *Service) postCredit(ctx context.Context, rec *store.ReceiptRecord) error {
	if !rec.Amount.IsPositive() {
		return nil
	}

	smallAmt := rec.Amount.Shift(int32(precisionFor(s.asset))).BigInt().String()
	postTx := shared.V2PostTransaction{
		Reference: strPtr("pix-deposit-" + strings.ToLower(rec.TxHash)),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptDepositCredit,
			Vars: map[string]string{
				"asset":      formanceAsset(s.asset),
				"amount":     smallAmt,
				"wallet":     walletAccount(rec.Address),
				"tx_hash":    rec.TxHash,
				"session_id": rec.SessionId,
				"charge_id":  rec.ChargeId,
			},
		},
	}
	if !rec.Timestamp.IsZero() {
		ts := rec.Timestamp
		postTx.Timestamp = &ts
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error recording deposit credit: %w", err)
	}

	zap.L().Info("Deposit credit recorded in Formance",
		zap.String("tx_hash", rec.TxHash),
		zap.String("amount", rec.Amount.String()),
		zap.String("wallet", walletAccount(rec.Address)))
	return nil
}

func (s *Service) GetReceipt(ctx context.Context, txHash string) (*models.Receipt, error) {
	rec, err := s.getRecord(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if err := checkLive(rec, s.now()); err != nil {
		return nil, err
	}
	r := rec.Receipt
	return &r, nil
}

// TakeReceipt marks the receipt consumed. The read and the metadata write
// are two calls, so two concurrent takes may both succeed.
func (s *Service) TakeReceipt(ctx context.Context, txHash string) (*models.Receipt, error) {
	rec, err := s.getRecord(ctx, txHash)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := checkLive(rec, now); err != nil {
		return nil, err
	}

	_, err = s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:  s.ledger,
		Address: receiptAccount(txHash),
		RequestBody: map[string]string{
			metaConsumedAt: now.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark receipt consumed: %w", err)
	}

	r := rec.Receipt
	return &r, nil
}

func (s *Service) ListReceipts(ctx context.Context, address string, limit int) ([]store.ReceiptRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	resp, err := s.client.Ledger.V2.ListAccounts(ctx, operations.V2ListAccountsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(int64(limit)),
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[" + metaWallet + "]": strings.ToLower(address),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	var out []store.ReceiptRecord
	for _, acct := range resp.V2AccountsCursorResponse.Cursor.Data {
		if !strings.HasPrefix(acct.Address, "receipts:") {
			continue
		}
		rec, err := recordFromMeta(acct.Metadata)
		if err != nil {
			zap.L().Warn("Skipping malformed receipt account",
				zap.String("account", acct.Address),
				zap.Error(err))
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PurgeExpired is a no-op: ledger history is immutable and expired
// receipts are filtered on read.
func (s *Service) PurgeExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (s *Service) getRecord(ctx context.Context, txHash string) (*store.ReceiptRecord, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: receiptAccount(txHash),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("failed to get receipt account: %w", err)
	}

	meta := resp.V2AccountResponse.Data.Metadata
	if meta[metaTxHash] == "" {
		// Formance returns empty accounts for unknown addresses
		return nil, store.ErrReceiptNotFound
	}
	return recordFromMeta(meta)
}

func checkLive(rec *store.ReceiptRecord, now time.Time) error {
	if rec.ConsumedAt != nil {
		return store.ErrReceiptConsumed
	}
	if rec.Expired(now) {
		return store.ErrReceiptExpired
	}
	return nil
}

func recordToMeta(rec *store.ReceiptRecord) map[string]string {
	return map[string]string{
		metaTxHash:     rec.TxHash,
		metaWallet:     strings.ToLower(rec.Address),
		metaAmount:     rec.Amount.String(),
		metaExplorer:   rec.ExplorerURL,
		metaTimestamp:  rec.Timestamp.UTC().Format(time.RFC3339Nano),
		metaSessionId:  rec.SessionId,
		metaChargeId:   rec.ChargeId,
		metaCreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		metaExpiresAt:  rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		metaConsumedAt: "",
	}
}

func recordFromMeta(meta map[string]string) (*store.ReceiptRecord, error) {
	amount, err := decimal.NewFromString(meta[metaAmount])
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", meta[metaAmount], err)
	}

	rec := &store.ReceiptRecord{
		Receipt: models.Receipt{
			TxHash:      meta[metaTxHash],
			Address:     meta[metaWallet],
			Amount:      amount,
			ExplorerURL: meta[metaExplorer],
			SessionId:   meta[metaSessionId],
		},
		ChargeId: meta[metaChargeId],
	}

	if rec.Timestamp, err = parseTime(meta[metaTimestamp]); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", metaTimestamp, err)
	}
	if rec.CreatedAt, err = parseTime(meta[metaCreatedAt]); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", metaCreatedAt, err)
	}
	if rec.ExpiresAt, err = parseTime(meta[metaExpiresAt]); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", metaExpiresAt, err)
	}
	if v := meta[metaConsumedAt]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", metaConsumedAt, err)
		}
		rec.ConsumedAt = &t
	}
	return rec, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
