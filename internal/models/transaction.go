package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the UI-facing settlement status of a transaction
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction is the canonical wallet transaction shape
type Transaction struct {
	Hash        string            `json:"hash"`
	Type        string            `json:"type"`   // "deposit", "withdrawal", "swap"
	Method      string            `json:"method"` // "PIX"
	Asset       string            `json:"asset"`
	AmountAsset decimal.Decimal   `json:"amount_asset"`
	AmountBRL   *decimal.Decimal  `json:"amount_brl,omitempty"`
	Status      TransactionStatus `json:"status"`
	Network     string            `json:"network,omitempty"`
	Address     string            `json:"address,omitempty"`
	ExplorerURL string            `json:"explorer_url,omitempty"`
	GasUsed     *int64            `json:"gas_used,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// BackendTransaction is a transaction record as the PIX backend returns it
type BackendTransaction struct {
	Hash           string `json:"hash"`
	Tipo           string `json:"tipo"`
	URL            string `json:"url"`
	Data           string `json:"data"`
	Hora           string `json:"hora"`
	ValorFormatado string `json:"valorFormatado"`
	ValorRaw       string `json:"valorRaw"`
	From           string `json:"from"`
	To             string `json:"to"`
	BlockNumber    int64  `json:"blockNumber"`
	Confirmations  int64  `json:"confirmations"`
	GasUsed        any    `json:"gasUsed,omitempty"`
}

// Receipt is the short-lived handoff record written after a credited deposit
type Receipt struct {
	TxHash      string          `json:"txHash"`
	Address     string          `json:"walletAddress"`
	Amount      decimal.Decimal `json:"amount"`
	ExplorerURL string          `json:"explorer"`
	Timestamp   time.Time       `json:"timestamp"`
	SessionId   string          `json:"sessionId,omitempty"`
}
