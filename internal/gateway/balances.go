package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceResponse struct {
	Success bool         `json:"success"`
	Data    *balanceData `json:"data"`
	Balance rawNumber    `json:"balance"`
}

type balanceData struct {
	Address    string    `json:"address"`
	Balance    rawNumber `json:"balance"`
	BalanceRaw rawNumber `json:"balanceRaw"`
}

// rawNumber keeps the JSON token so coercion failures can fall back to zero
// instead of failing the whole decode.
type rawNumber []byte

func (r *rawNumber) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// GetBalance returns the token balance the backend reports for address.
// A balance that cannot be coerced to a number is treated as zero.
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	const op = "get_balance"

	address, err := checkAddress(op, address)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.do(ctx, op, http.MethodGet, "/balance/"+url.PathEscape(address), nil)
	if err != nil {
		return decimal.Zero, err
	}

	var out balanceResponse
	if err := decode(op, resp, &out); err != nil {
		return decimal.Zero, err
	}

	raw := out.Balance
	if out.Data != nil && len(out.Data.Balance) > 0 {
		raw = out.Data.Balance
	}

	return coerceBalance(address, raw), nil
}

func coerceBalance(address string, raw rawNumber) decimal.Decimal {
	if len(raw) == 0 {
		zap.L().Warn("Backend returned no balance, assuming zero", zap.String("address", address))
		return decimal.Zero
	}

	var f flexDecimal
	if err := f.UnmarshalJSON(raw); err != nil || !f.Set {
		zap.L().Warn("Unparsable balance, assuming zero",
			zap.String("address", address),
			zap.String("raw", string(raw)))
		return decimal.Zero
	}
	return f.Value
}
