package gateway

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// matches the numeric head of "30.0 DFLCOM1"
var amountPattern = regexp.MustCompile(`^([\d.]+)\s+`)

func (c *Client) transformAll(txs []models.BackendTransaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	for i := range txs {
		out[i] = c.transform(txs[i])
	}
	return out
}

// transform maps a backend record to the canonical transaction shape. Shape
// problems degrade to defaults (zero amount, current time) and a log line.
func (c *Client) transform(tx models.BackendTransaction) models.Transaction {
	amount := parseAmount(tx)

	createdAt, err := time.Parse(time.RFC3339, tx.Data+"T"+tx.Hora+"Z")
	if err != nil {
		zap.L().Error("Invalid date for transaction",
			zap.String("hash", tx.Hash),
			zap.String("data", tx.Data),
			zap.String("hora", tx.Hora))
		createdAt = c.now().UTC()
	}

	status := models.TransactionPending
	var completedAt *time.Time
	if tx.Confirmations > 0 {
		status = models.TransactionSuccess
		done := createdAt
		completedAt = &done
	}

	amountBRL := amount

	return models.Transaction{
		Hash:        tx.Hash,
		Type:        "deposit",
		Method:      "PIX",
		Asset:       c.assetOr("BRLA"),
		AmountAsset: amount,
		AmountBRL:   &amountBRL,
		Status:      status,
		Network:     c.networkOr("ARBITRUM_SEPOLIA"),
		Address:     tx.To,
		ExplorerURL: c.explorerURL(tx),
		GasUsed:     parseGasUsed(tx.GasUsed),
		CreatedAt:   createdAt,
		CompletedAt: completedAt,
	}
}

func parseAmount(tx models.BackendTransaction) decimal.Decimal {
	m := amountPattern.FindStringSubmatch(tx.ValorFormatado)
	if m == nil {
		zap.L().Warn("Unparsable transaction amount",
			zap.String("hash", tx.Hash),
			zap.String("valor_formatado", tx.ValorFormatado))
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		zap.L().Warn("Unparsable transaction amount",
			zap.String("hash", tx.Hash),
			zap.String("valor_formatado", tx.ValorFormatado))
		return decimal.Zero
	}
	return d
}

// parseGasUsed accepts an integral JSON number or a non-blank numeric string.
// Fractional or out of range values are dropped rather than truncated.
func parseGasUsed(v any) *int64 {
	var n int64
	switch g := v.(type) {
	case float64:
		if math.IsNaN(g) || math.IsInf(g, 0) || g != math.Trunc(g) ||
			g < math.MinInt64 || g >= math.MaxInt64 {
			return nil
		}
		n = int64(g)
	case json.Number:
		i, err := g.Int64()
		if err != nil {
			return nil
		}
		n = i
	case string:
		s := strings.TrimSpace(g)
		if s == "" {
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

// explorerURL prefers the backend url and falls back to the configured
// explorer prefix. "#" placeholders count as missing.
func (c *Client) explorerURL(tx models.BackendTransaction) string {
	u := strings.TrimSpace(tx.URL)
	if u != "" && u != "#" {
		return u
	}
	if c.explorerTxURL == "" || tx.Hash == "" {
		return ""
	}
	return strings.TrimRight(c.explorerTxURL, "/") + "/" + tx.Hash
}

func (c *Client) assetOr(def string) string {
	if c.asset != "" {
		return c.asset
	}
	return def
}

func (c *Client) networkOr(def string) string {
	if c.network != "" {
		return c.network
	}
	return def
}
