package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into a
// BackendError. The message is taken from the body when it carries one.
func MapHTTPError(name string, resp *http.Response) *provider.BackendError {
	message := ExtractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)
	}
	return &provider.BackendError{
		Provider: name,
		Status:   resp.StatusCode,
		Message:  message,
	}
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS resolution failure) into a BackendError.
func MapNetworkError(name string, err error) *provider.BackendError {
	return &provider.BackendError{
		Provider: name,
		Message:  fmt.Sprintf("backend connection error: %s", err.Error()),
		Err:      err,
	}
}

// ExtractErrorMessage reads at most 4 KiB of body and returns the most
// specific message it can find: error.message, message, detail, or the
// raw text.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil {
		switch {
		case errResp.Error.Message != "":
			return errResp.Error.Message
		case errResp.Message != "":
			return errResp.Message
		case errResp.Detail != nil:
			if s, ok := errResp.Detail.(string); ok {
				return s
			}
			b, _ := json.Marshal(errResp.Detail)
			return string(b)
		}
	}

	return strings.TrimSpace(string(data))
}
