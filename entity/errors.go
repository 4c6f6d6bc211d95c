package entity

import (
	"fmt"
	"strings"
)

// Rejection reasons produced by the normalizer.
const (
	ReasonMissingFields      = "missing_fields"
	ReasonEventIgnored       = "event_ignored"
	ReasonConnectorMismatch  = "connector_mismatch"
	ReasonUnsupportedPayload = "unsupported_payload"
)

// Error codes returned in relay responses.
const (
	CodeBitrix       = "B24_ERROR"
	CodeGateway      = "GATEWAY_ERROR"
	CodeAuthRefresh  = "AUTH_REFRESH_ERROR"
	CodeConfig       = "CONFIG_ERROR"
	CodeInvalidInput = "INVALID_PAYLOAD"
)

// ValidationError means the inbound payload lacks what is needed to relay it.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthRefreshError means the OAuth refresh-token grant failed.
type AuthRefreshError struct {
	Portal string
	Err    error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("refresh token for %s: %v", e.Portal, e.Err)
}

func (e *AuthRefreshError) Unwrap() error { return e.Err }

// RemoteSendError is a transport failure or non-success answer of a remote API.
type RemoteSendError struct {
	Target string // "bitrix" | "gateway"
	Code   string
	Status int
	Body   interface{}
	Err    error
}

func (e *RemoteSendError) Error() string {
	msg := fmt.Sprintf("%s send failed", e.Target)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteSendError) Unwrap() error { return e.Err }

// ConfigurationError lists required settings that are not set.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing configuration: " + strings.Join(e.Missing, ", ")
}
