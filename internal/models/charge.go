package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeQuote is the breakdown of what the payer is charged for a deposit.
// Total is always AmountBRL + Fee.
type FeeQuote struct {
	AmountBRL decimal.Decimal `json:"amount_brl"`
	Fee       decimal.Decimal `json:"fee"`
	Total     decimal.Decimal `json:"total"`
}

// PixCharge is an issued PIX charge. It is immutable once created.
type PixCharge struct {
	RawPayload      string          `json:"raw_payload"`
	BRCode          string          `json:"br_code"`
	QRCodeImageURL  string          `json:"qr_code_image_url,omitempty"`
	PaymentLinkURL  string          `json:"payment_link_url,omitempty"`
	PayerKey        string          `json:"payer_key,omitempty"`
	AmountBRL       decimal.Decimal `json:"amount_brl"`
	Fee             decimal.Decimal `json:"fee"`
	Description     string          `json:"description"`
	TransactionId   string          `json:"transaction_id"`
	BeneficiaryName string          `json:"beneficiary_name"`
	Status          string          `json:"status"`
	ExpiresAt       time.Time       `json:"expires_at"`
	City            string          `json:"city,omitempty"`
}

// Expired reports whether the charge is past its expiry at the given instant
func (c *PixCharge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TimeLeft returns the remaining validity, floored at zero
func (c *PixCharge) TimeLeft(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	left := c.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

// BalanceSnapshot is the baseline balance captured before payment confirmation
type BalanceSnapshot struct {
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	CapturedAt time.Time       `json:"captured_at"`
}
