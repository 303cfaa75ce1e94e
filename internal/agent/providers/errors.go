package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind categorizes a provider failure for retry decisions and
// user-facing messages. The detailed cause stays in the log; callers only
// need to know whether another attempt can help.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindRateLimit      ErrorKind = "rate_limit"
	KindAuth           ErrorKind = "auth"
	KindModelMissing   ErrorKind = "model_missing"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindServer         ErrorKind = "server_error"
	KindProtocol       ErrorKind = "protocol"
	KindUnknown        ErrorKind = "unknown"
)

// IsRetryable reports whether this kind of failure is plausibly transient.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindRateLimit, KindServer:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider call.
type ProviderError struct {
	// Kind categorizes the error for retry logic.
	Kind ErrorKind

	// Provider is the provider name (e.g. "ollama").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Kind)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause with provider context and a kind inferred
// from the cause's text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Kind:     classifyCause(cause),
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
}

// WithStatus attaches an HTTP status and reclassifies from it, since a
// status code beats message sniffing.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if kind := classifyStatus(status); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

func classifyCause(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "dial tcp"):
		return KindNetwork
	case strings.Contains(msg, "decode response"), strings.Contains(msg, "unexpected end of json"):
		return KindProtocol
	case strings.Contains(msg, "model is required"):
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusNotFound:
		return KindModelMissing
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}

// IsRetryable reports whether err is a provider failure worth retrying.
func IsRetryable(err error) bool {
	if pe, ok := GetProviderError(err); ok {
		return pe.Kind.IsRetryable()
	}
	return false
}
