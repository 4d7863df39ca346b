// Package apierr classifies non-2xx HTTP responses from the Files API and
// from provider token endpoints into sentinel errors.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, apierr.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
	ErrThrottled    = errors.New("api: throttled")
	ErrServerError  = errors.New("api: server error")
)

// HTTPError wraps a sentinel error with the HTTP status code and the
// server-provided reason and message.
type HTTPError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// errorEnvelope is the error body shape returned by the Files API:
// {"error": {"code": 409, "reason": "conflict", "message": "..."}}.
// OAuth2 token endpoints use {"error": "...", "error_description": "..."};
// both are handled by FromResponse.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
	// OAuth2 token endpoint error description.
	Description string `json:"error_description"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// FromResponse builds an HTTPError from a non-2xx status and the raw response
// body. Bodies that are not JSON are kept verbatim as the message.
func FromResponse(statusCode int, body []byte) *HTTPError {
	herr := &HTTPError{
		StatusCode: statusCode,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return herr
	}

	var eb errorBody
	if err := json.Unmarshal(env.Error, &eb); err == nil {
		herr.Reason = eb.Reason
		if eb.Message != "" {
			herr.Message = eb.Message
		}

		return herr
	}

	// OAuth2 style: "error" is a plain string code.
	var code string
	if err := json.Unmarshal(env.Error, &code); err == nil {
		herr.Reason = code
		if env.Description != "" {
			herr.Message = env.Description
		}
	}

	return herr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
