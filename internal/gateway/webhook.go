package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type webhookRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,evm_address"`
	Amount        string `json:"amount,omitempty"`
}

// PostPixWebhook triggers the legacy mint webhook.
//
// Deprecated: the backend settles charges through the PIX provider callback.
// Kept for manual testing against older backends.
func (c *Client) PostPixWebhook(ctx context.Context, address string, amount *decimal.Decimal) (map[string]any, error) {
	const op = "pix_webhook"

	address, err := checkAddress(op, address)
	if err != nil {
		return nil, err
	}

	req := webhookRequest{WalletAddress: address}
	if amount != nil {
		req.Amount = amount.String()
	}

	zap.L().Warn("Calling deprecated PIX webhook", zap.String("address", address))

	resp, err := c.do(ctx, op, http.MethodPost, "/pixWebhook", req)
	if err != nil {
		return nil, err
	}

	if resp.JSON == nil {
		return map[string]any{"message": resp.Text}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(resp.JSON, &out); err != nil {
		// arbitrary JSON, e.g. a bare string or array
		var v any
		if err := json.Unmarshal(resp.JSON, &v); err != nil {
			return nil, &Error{Kind: KindResponse, Op: op, Message: "unable to decode response", Err: err}
		}
		out["result"] = v
	}
	return out, nil
}
