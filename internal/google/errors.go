package google

import (
	"errors"
	"fmt"
	"net/http"

	"proactive/internal/config"

	"google.golang.org/api/googleapi"
)

var (
	// ErrAuthFailure indicates no usable credential could be obtained.
	ErrAuthFailure = errors.New("google: authentication failed")

	// ErrClientSecretsMissing indicates the OAuth client configuration file is absent.
	ErrClientSecretsMissing = fmt.Errorf("%w: OAuth client secrets file not found", config.ErrConfigMissing)
)

// Classify returns a short label describing a Google API error, for logs.
func Classify(err error) string {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return "transport"
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return "unauthorised"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if gerr.Code >= http.StatusInternalServerError {
		return "server_error"
	}
	return fmt.Sprintf("http_%d", gerr.Code)
}
