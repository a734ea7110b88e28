package oracle

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// ErrorCategory is the normalized failure taxonomy for oracle calls.
type ErrorCategory string

const (
	// ErrorProviderCall covers transport-level failures: timeouts, rate
	// limits, provider outages. Worth retrying.
	ErrorProviderCall ErrorCategory = "provider_call"

	// ErrorBadData means the provider answered with something unparseable.
	// Retrying a deterministic parse failure is wasted budget.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal is an unexpected engine-side failure.
	ErrorInternal ErrorCategory = "internal"
)

// OracleError wraps oracle failures with a category and a retry decision, so
// stages never inspect provider-specific error types.
type OracleError struct {
	Category   ErrorCategory
	Message    string
	Underlying error
	Retryable  bool
}

func (e *OracleError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("oracle [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("oracle [%s]: %s", e.Category, e.Message)
}

func (e *OracleError) Unwrap() error {
	return e.Underlying
}

func NewOracleError(category ErrorCategory, message string, underlying error) *OracleError {
	return &OracleError{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorProviderCall,
	}
}

// IsRetryable reports whether the retry policy should attempt the call again.
func IsRetryable(err error) bool {
	var oe *OracleError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// classifyCall wraps a provider failure. Deterministic rejections — bad API
// keys, malformed requests, any 4xx that is not a timeout or rate limit —
// are marked non-retryable so the retry budget is reserved for transient
// faults.
func classifyCall(message string, err error) *OracleError {
	oe := NewOracleError(ErrorProviderCall, message, err)
	if status, ok := providerStatus(err); ok && !transientStatus(status) {
		oe.Retryable = false
	}
	return oe
}

// providerStatus extracts the HTTP status from the provider SDK error types.
func providerStatus(err error) (int, bool) {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode, true
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode, true
	}
	var anReq *anthropic.RequestError
	if errors.As(err, &anReq) {
		return anReq.StatusCode, true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
