package rest

import (
	"errors"
	"fmt"

	"github.com/sungminna/upbit-scalping-bot/pkg/ratelimit"
)

// Error kinds. Every error returned by Client wraps exactly one of these.
var (
	ErrAuthFailed  = errors.New("AUTH_FAILED")
	ErrBadRequest  = errors.New("BAD_REQUEST")
	ErrRateLimited = errors.New("RATE_LIMITED")
	ErrTransient   = errors.New("TRANSIENT")
	ErrParse       = errors.New("PARSE_ERROR")
)

// APIError describes a failed exchange call.
type APIError struct {
	Kind    error
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("API error: kind=%s, status=%d", e.Kind, e.Status)
	}
	return fmt.Sprintf("API error: kind=%s, status=%d, code=%s, message=%s", e.Kind, e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// errorBody is the exchange error envelope.
type errorBody struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// Kind returns the taxonomy label of err, or "UNKNOWN".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthFailed):
		return ErrAuthFailed.Error()
	case errors.Is(err, ErrBadRequest):
		return ErrBadRequest.Error()
	case errors.Is(err, ErrRateLimited), errors.Is(err, ratelimit.ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, ErrTransient):
		return ErrTransient.Error()
	case errors.Is(err, ErrParse):
		return ErrParse.Error()
	default:
		return "UNKNOWN"
	}
}

func kindForStatus(status int) error {
	switch {
	case status == 401, status == 403:
		return ErrAuthFailed
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrTransient
	default:
		return ErrBadRequest
	}
}
