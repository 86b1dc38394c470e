package gateway

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies gateway failures for the session layer
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindHTTP       ErrorKind = "http"
	KindValidation ErrorKind = "validation"
	KindResponse   ErrorKind = "response"
)

// Error is the normalized gateway error. Status is set for KindHTTP only.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// transport signatures that mean the backend cannot be reached right now
var unavailableSignatures = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"deadline exceeded",
	"eof",
	"tls handshake timeout",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

// IsUnavailable reports whether err means the backend is unreachable or
// temporarily refusing traffic, as opposed to rejecting the request.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case KindNetwork:
			return true
		case KindValidation:
			return false
		case KindHTTP:
			if gwErr.Status == 502 || gwErr.Status == 503 || gwErr.Status == 504 {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range unavailableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err was raised locally before any request was sent
func IsValidation(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Kind == KindValidation
}
