package gateway

import (
	"context"
	"net/http"
	"net/url"

	"pix-deposit-go/internal/models"
)

type transactionsResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Wallet       string                      `json:"wallet"`
		Transactions []models.BackendTransaction `json:"transactions"`
	} `json:"data"`
}

// GetTransactions returns the wallet's transactions, most recent first, in
// the order the backend sent them.
func (c *Client) GetTransactions(ctx context.Context, address string) ([]models.Transaction, error) {
	const op = "get_transactions"

	address, err := checkAddress(op, address)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, op, http.MethodGet, "/wallets/"+url.PathEscape(address)+"/transactions", nil)
	if err != nil {
		return nil, err
	}

	var out transactionsResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []models.Transaction{}, nil
	}

	return c.transformAll(out.Data.Transactions), nil
}
