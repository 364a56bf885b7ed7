package gemini

import (
	"errors"
	"fmt"
)

// Gateway error taxonomy. Handlers map these onto HTTP statuses; safe-default
// operations swallow them and fall back locally.
var (
	ErrCredentialMissing = errors.New("gemini credential missing: set GEMINI_API_KEY")
	ErrGatewayTimeout    = errors.New("gemini gateway timeout")
	ErrProxyUnavailable  = errors.New("gemini proxy unavailable")
	ErrMalformedResponse = errors.New("gemini response could not be recovered as JSON")
)

// BackendError carries a non-2xx rejection from the model backend or proxy.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini backend rejected request (%d)", e.StatusCode)
	}
	return fmt.Sprintf("gemini backend rejected request (%d): %s", e.StatusCode, e.Message)
}

func (e *BackendError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
