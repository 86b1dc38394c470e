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

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChargeValidity is how long the provider keeps a PIX charge payable when
// the backend does not report an expiry.
const ChargeValidity = 5 * time.Minute

type createChargeRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,evm_address"`
	Value         int64  `json:"value" validate:"gt=0"`
}

type chargeResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    *chargeData `json:"data"`
}

type chargeData struct {
	QRCodeImage    string      `json:"qrCodeImage"`
	BRCode         string      `json:"brCode"`
	TransactionId  string      `json:"transactionId"`
	Value          flexDecimal `json:"value"` // cents
	Fee            flexDecimal `json:"fee"`   // cents
	Status         string      `json:"status"`
	PaymentLinkURL string      `json:"paymentLinkUrl"`
	ExpiresDate    string      `json:"expiresDate"`
}

// ToCents converts a BRL amount to integer cents, rounding half away from zero
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents decimal.Decimal) decimal.Decimal {
	return cents.Shift(-2)
}

// CreateCharge asks the backend to issue a PIX charge of amountBRL payable
// to address. amountBRL is what the payer is charged, fee included.
func (c *Client) CreateCharge(ctx context.Context, address string, amountBRL decimal.Decimal) (*models.PixCharge, error) {
	const op = "create_charge"

	address, err := checkAddress(op, address)
	if err != nil {
		return nil, err
	}

	req := createChargeRequest{WalletAddress: address, Value: ToCents(amountBRL)}
	if err := validate.Struct(&req); err != nil {
		return nil, validationError(op, fmt.Sprintf("invalid charge request: %v", err))
	}

	zap.L().Info("Creating PIX charge",
		zap.String("address", address),
		zap.String("amount_brl", amountBRL.StringFixed(2)),
		zap.Int64("value_cents", req.Value))

	resp, err := c.do(ctx, op, http.MethodPost, "/get_qrcode", req)
	if err != nil {
		return nil, err
	}

	var out chargeResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Data == nil {
		msg := out.Message
		if msg == "" {
			msg = "charge was not created"
		}
		return nil, &Error{Kind: KindResponse, Op: op, Message: msg}
	}
	if out.Data.BRCode == "" {
		return nil, &Error{Kind: KindResponse, Op: op, Message: "charge has no payment code"}
	}

	charge := c.toCharge(out.Data, amountBRL)

	zap.L().Info("PIX charge created",
		zap.String("transaction_id", charge.TransactionId),
		zap.String("status", charge.Status),
		zap.Time("expires_at", charge.ExpiresAt))

	return charge, nil
}

func (c *Client) toCharge(d *chargeData, requested decimal.Decimal) *models.PixCharge {
	now := c.now()

	amount := requested
	if d.Value.Set {
		amount = fromCents(d.Value.Value)
	}
	fee := decimal.Zero
	if d.Fee.Set {
		fee = fromCents(d.Fee.Value)
	}

	expiresAt := now.Add(ChargeValidity)
	if d.ExpiresDate != "" {
		if t, err := time.Parse(time.RFC3339, d.ExpiresDate); err == nil {
			expiresAt = t
		} else {
			zap.L().Warn("Unparsable charge expiry, using default validity",
				zap.String("expires_date", d.ExpiresDate),
				zap.Error(err))
		}
	}

	return &models.PixCharge{
		RawPayload:      d.BRCode,
		BRCode:          d.BRCode,
		QRCodeImageURL:  d.QRCodeImage,
		PaymentLinkURL:  d.PaymentLinkURL,
		AmountBRL:       amount,
		Fee:             fee,
		Description:     c.description,
		TransactionId:   d.TransactionId,
		BeneficiaryName: c.beneficiary,
		Status:          d.Status,
		ExpiresAt:       expiresAt,
	}
}
