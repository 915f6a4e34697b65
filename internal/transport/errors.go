package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPError carries an unexpected HTTP response: the response itself, its
// status, and — when the body is the service's {error, message} JSON
// shape — the parsed code and message. Per spec, a non-2xx response is
// never retried by Transport; it is always returned to the caller to
// classify against its own accepted set of codes.
type HTTPError struct {
	Response   *http.Response
	StatusCode int
	Status     string
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("nottorney: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("nottorney: %s", e.Status)
}

// NewHTTPError builds an *HTTPError from a response, consuming (but not
// closing) its body to look for the service's error envelope. The caller
// remains responsible for closing resp.Body.
func NewHTTPError(resp *http.Response) *HTTPError {
	herr := &HTTPError{Response: resp, StatusCode: resp.StatusCode, Status: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return herr
	}

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		herr.Code = envelope.Error
		herr.Message = envelope.Message
	}
	return herr
}
