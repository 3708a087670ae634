package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind int

const (
	KindNetwork Kind = iota // connection-level failure, no HTTP status
	KindRateLimited
	KindServer
	KindAuth
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Error is the normalized failure produced by the transport.
// Status is zero for network-level failures.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsAuth reports whether err is a 401/403 transport failure.
func IsAuth(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindAuth
}

// IsNotFound reports whether err is a 404 transport failure.
func IsNotFound(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindNotFound
}

// IsRateLimited reports whether err is a 429 transport failure.
func IsRateLimited(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindRateLimited
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// errorFromResponse builds an Error from an HTTP status and response body.
// The message is pulled from a JSON `detail` or `message` field when present.
func errorFromResponse(status int, body []byte) *Error {
	msg := fmt.Sprintf("Request failed: %d", status)
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			msg = payload.Detail
		} else if payload.Message != "" {
			msg = payload.Message
		}
	}
	return &Error{Kind: kindForStatus(status), Status: status, Message: msg}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
}
