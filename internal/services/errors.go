package services

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

var (
	ErrMissingAPIKey    = errors.New("gemini api key is not configured")
	ErrTransport        = errors.New("gemini request failed")
	ErrParse            = errors.New("malformed model response")
	ErrSessionNotFound  = errors.New("interview session not found")
	ErrSessionEnded     = errors.New("interview session has ended")
	ErrMicrophoneDenied = errors.New("microphone permission denied")
	ErrLiveClosed       = errors.New("live session closed")
)

// Error kinds persisted on failed jobs and returned to API clients.
const (
	KindConfiguration = "configuration"
	KindTransport     = "transport"
	KindRateLimited   = "rate_limited"
	KindParse         = "parse"
	KindInternal      = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return KindConfiguration
	case errors.Is(err, ErrParse):
		return KindParse
	case IsRateLimited(err):
		return KindRateLimited
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindInternal
	}
}

func IsRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}

// wrapTransport keeps both ErrTransport and the underlying API error
// reachable through errors.Is and errors.As.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
