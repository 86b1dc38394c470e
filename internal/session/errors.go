package session

import (
	"errors"

	"pix-deposit-go/internal/gateway"
	"pix-deposit-go/internal/policy"
)

var (
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrChargeInProgress   = errors.New("charge generation already in progress")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrWrongChain         = errors.New("wallet is on the wrong chain")
	ErrNoAmount           = errors.New("no valid amount entered")
	ErrNoAsset            = errors.New("no asset selected")
	ErrNoSnapshot         = errors.New("balance snapshot missing")
	ErrChargeExpired      = errors.New("charge expired")
	ErrSessionClosed      = errors.New("session closed")
)

// UserMessage maps an error to the text shown to the user. Presentation
// layers never format raw errors themselves.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var bound *policy.BoundError
	switch {
	case errors.As(err, &bound):
		return bound.Error()
	case errors.Is(err, ErrWalletNotConnected):
		return "Connect your wallet to continue"
	case errors.Is(err, ErrWrongChain):
		return "Switch your wallet to the supported network"
	case errors.Is(err, ErrNoAmount):
		return "Enter a valid amount"
	case errors.Is(err, ErrNoAsset):
		return "Select an asset to receive"
	case errors.Is(err, ErrChargeInProgress):
		return "A PIX charge is already being generated"
	case errors.Is(err, ErrChargeExpired):
		return "This PIX charge has expired. Generate a new one"
	case errors.Is(err, ErrNoSnapshot):
		return "Could not read your balance. Generate a new charge"
	case errors.Is(err, ErrSessionClosed):
		return "This deposit was closed"
	case errors.Is(err, ErrInvalidTransition):
		return "This action is not available right now"
	case gateway.IsValidation(err):
		return "Invalid wallet address"
	case gateway.IsUnavailable(err):
		return "Service unavailable, try again later"
	default:
		return "Could not generate the PIX charge. Try again"
	}
}
