package models

import (
	"context"

	"github.com/shopspring/decimal"
)

type depositContextKey struct{}

// DepositContext carries session data through context so receipt stores can
// record it as metadata without widening the ReceiptStore interface.
type DepositContext struct {
	SessionId     string
	ChargeId      string // PIX charge transaction id
	Asset         string
	Network       string
	AmountBRL     decimal.Decimal
	Fee           decimal.Decimal
	CreditedDelta decimal.Decimal
}

// WithDepositContext attaches deposit session data to a context.
func WithDepositContext(ctx context.Context, dc *DepositContext) context.Context {
	return context.WithValue(ctx, depositContextKey{}, dc)
}

// GetDepositContext retrieves deposit session data from context, or nil if absent.
func GetDepositContext(ctx context.Context) *DepositContext {
	dc, _ := ctx.Value(depositContextKey{}).(*DepositContext)
	return dc
}
