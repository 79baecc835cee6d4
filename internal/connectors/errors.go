package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/chrissnell/launchplanner/internal/keys"
)

var (
	// ErrNoKey is returned when a service that needs a key has none configured
	ErrNoKey = keys.ErrNoKey
	// ErrNoLiveData is returned in strict mode when a live call failed and a
	// fallback would otherwise have been used
	ErrNoLiveData = errors.New("no live data available")
	// ErrNoData is returned when no source answered at all
	ErrNoData = errors.New("no data available")
)

// Kind classifies a vendor API failure
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindRateLimited
	KindQuotaExceeded
	KindNotFound
	KindBadRequest
	KindServer
	KindNetwork
	KindDecode
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindUnauthorized:  "unauthorized",
	KindRateLimited:   "rate_limited",
	KindQuotaExceeded: "quota_exceeded",
	KindNotFound:      "not_found",
	KindBadRequest:    "bad_request",
	KindServer:        "server_error",
	KindNetwork:       "network_error",
	KindDecode:        "decode_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether retrying the same request may succeed
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimited, KindServer, KindNetwork:
		return true
	}
	return false
}

// KeyProblem reports whether the failure is attributable to the key used
func (k Kind) KeyProblem() bool {
	switch k {
	case KindUnauthorized, KindRateLimited, KindQuotaExceeded:
		return true
	}
	return false
}

// APIError is a classified vendor API failure
type APIError struct {
	Service    keys.Service
	StatusCode int
	Code       string
	Message    string
	Kind       Kind
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s: %s (HTTP %d, %s): %s", e.Service, e.Kind, e.StatusCode, e.Code, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Service, e.Kind, e.StatusCode, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Service, e.Kind, msg)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, KindUnknown when it carries none
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by err, or zero
func StatusCodeOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// classifyStatus maps an HTTP status to a Kind when the body says nothing more
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindBadRequest
	}
	return KindUnknown
}
