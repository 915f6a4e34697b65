package nottorney

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// decodeJSON decodes resp's body as JSON into v. The caller remains
// responsible for closing resp.Body.
func decodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("nottorney: decoding response body: %w", err)
	}
	return nil
}

// acceptStatus reports whether statusCode is one of want.
func acceptStatus(statusCode int, want ...int) bool {
	for _, w := range want {
		if statusCode == w {
			return true
		}
	}
	return false
}
