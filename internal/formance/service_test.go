package formance

import (
	"errors"
	"testing"
	"time"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BRLA", "BRLA/2"},
		{"USDC", "USDC/6"},
		{"ETH", "ETH/18"},
		{"UNKNOWN", "UNKNOWN/6"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.symbol); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestAccountNames(t *testing.T) {
	if got := receiptAccount("0xABCdef"); got != "receipts:0xabcdef" {
		t.Errorf("receiptAccount = %q", got)
	}
	if got := walletAccount("0xAbC"); got != "wallets:0xabc" {
		t.Errorf("walletAccount = %q", got)
	}
}

func TestRecordMetadataRoundTrip(t *testing.T) {
	created := time.Date(2025, 11, 8, 3, 42, 12, 0, time.UTC)
	rec := &store.ReceiptRecord{
		Receipt: models.Receipt{
			TxHash:      "0xabc",
			Address:     "0xAbC0000000000000000000000000000000000001",
			Amount:      decimal.RequireFromString("100.5"),
			ExplorerURL: "https://sepolia.arbiscan.io/tx/0xabc",
			Timestamp:   created.Add(-time.Minute),
			SessionId:   "session-1",
		},
		ChargeId:  "charge-1",
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}

	meta := recordToMeta(rec)
	if meta[metaWallet] != "0xabc0000000000000000000000000000000000001" {
		t.Errorf("Expected lowercased wallet, got %s", meta[metaWallet])
	}

	got, err := recordFromMeta(meta)
	if err != nil {
		t.Fatalf("recordFromMeta failed: %v", err)
	}
	if !got.Amount.Equal(rec.Amount) || got.ChargeId != "charge-1" || got.SessionId != "session-1" {
		t.Errorf("Unexpected record %+v", got)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Times did not survive: %v %v", got.ExpiresAt, got.Timestamp)
	}
	if got.ConsumedAt != nil {
		t.Error("Expected unconsumed record")
	}
}

func TestRecordFromMetaRejectsBadAmount(t *testing.T) {
	if _, err := recordFromMeta(map[string]string{metaTxHash: "0x1", metaAmount: "lots"}); err == nil {
		t.Error("Expected error for malformed amount")
	}
}

func TestCheckLive(t *testing.T) {
	now := time.Date(2025, 11, 8, 3, 42, 12, 0, time.UTC)
	consumed := now.Add(-time.Second)

	tests := []struct {
		name string
		rec  store.ReceiptRecord
		want error
	}{
		{"live", store.ReceiptRecord{ExpiresAt: now.Add(time.Minute)}, nil},
		{"expired", store.ReceiptRecord{ExpiresAt: now}, store.ErrReceiptExpired},
		{"consumed", store.ReceiptRecord{ExpiresAt: now.Add(time.Minute), ConsumedAt: &consumed}, store.ErrReceiptConsumed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := checkLive(&tt.rec, now); !errors.Is(err, tt.want) {
				t.Errorf("checkLive = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsConflictError(t *testing.T) {
	// nil error should not be a conflict
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
	if isNotFoundError(errors.New("not found")) {
		t.Error("plain errors should not be NOT_FOUND")
	}
}
