// Package policy validates deposit amounts and quotes the PIX fee.
//
// All arithmetic is done on decimals without rounding; rounding to cents is a
// display concern (see common.FormatBRL) and, for the wire, a gateway concern.
package policy

import (
	"errors"
	"fmt"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrBelowMin = errors.New("amount below minimum")
	ErrAboveMax = errors.New("amount above maximum")
)

// Canonical policy: R$ 1.00 to R$ 5,000.00, fee of 1.5% with a R$ 0.85 floor.
var Default = models.AmountPolicy{
	MinAmount: decimal.RequireFromString("1.00"),
	MaxAmount: decimal.RequireFromString("5000.00"),
	MinFee:    decimal.RequireFromString("0.85"),
	FeeRate:   decimal.RequireFromString("0.015"),
}

// Extended is the alternate variant seen in the amount entry widget:
// up to R$ 50,000.00 with a R$ 3.90 fee floor.
var Extended = models.AmountPolicy{
	MinAmount: decimal.RequireFromString("1.00"),
	MaxAmount: decimal.RequireFromString("50000.00"),
	MinFee:    decimal.RequireFromString("3.90"),
	FeeRate:   decimal.RequireFromString("0.015"),
}

// BoundError reports which bound an amount violated
type BoundError struct {
	Kind  error // ErrBelowMin or ErrAboveMax
	Bound decimal.Decimal
}

func (e *BoundError) Error() string {
	if e.Kind == ErrAboveMax {
		return fmt.Sprintf("maximum is R$ %s", e.Bound.StringFixed(2))
	}
	return fmt.Sprintf("minimum is R$ %s", e.Bound.StringFixed(2))
}

func (e *BoundError) Unwrap() error { return e.Kind }

type Policy struct {
	min     decimal.Decimal
	max     decimal.Decimal
	minFee  decimal.Decimal
	feeRate decimal.Decimal
}

// New builds a Policy, rejecting inconsistent parameters
func New(p models.AmountPolicy) (*Policy, error) {
	if !p.MinAmount.IsPositive() {
		return nil, fmt.Errorf("min amount must be positive, got %s", p.MinAmount)
	}
	if p.MaxAmount.LessThan(p.MinAmount) {
		return nil, fmt.Errorf("max amount %s is below min amount %s", p.MaxAmount, p.MinAmount)
	}
	if p.MinFee.IsNegative() {
		return nil, fmt.Errorf("min fee cannot be negative, got %s", p.MinFee)
	}
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be in [0, 1), got %s", p.FeeRate)
	}
	return &Policy{
		min:     p.MinAmount,
		max:     p.MaxAmount,
		minFee:  p.MinFee,
		feeRate: p.FeeRate,
	}, nil
}

// MustNew is New for package-level defaults that are known to be valid
func MustNew(p models.AmountPolicy) *Policy {
	pol, err := New(p)
	if err != nil {
		panic(err)
	}
	return pol
}

func (p *Policy) Min() decimal.Decimal { return p.min }
func (p *Policy) Max() decimal.Decimal { return p.max }

// Validate checks amount against [min, max]. Only the first violated bound is
// reported.
func (p *Policy) Validate(amount decimal.Decimal) error {
	if amount.LessThan(p.min) {
		return &BoundError{Kind: ErrBelowMin, Bound: p.min}
	}
	if amount.GreaterThan(p.max) {
		return &BoundError{Kind: ErrAboveMax, Bound: p.max}
	}
	return nil
}

// Fee returns max(minFee, amount * feeRate)
func (p *Policy) Fee(amount decimal.Decimal) decimal.Decimal {
	return decimal.Max(p.minFee, amount.Mul(p.feeRate))
}

// Quote computes the fee breakdown for a valid amount. Amounts that fail
// Validate are refused, so a quote is never produced for amount <= 0.
func (p *Policy) Quote(amount decimal.Decimal) (models.FeeQuote, error) {
	if err := p.Validate(amount); err != nil {
		return models.FeeQuote{}, err
	}
	fee := p.Fee(amount)
	return models.FeeQuote{
		AmountBRL: amount,
		Fee:       fee,
		Total:     amount.Add(fee),
	}, nil
}
