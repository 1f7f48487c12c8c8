package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTransport is a JSON-over-HTTP Transport, grounded on the teacher's
// mcp.HTTPTransport: a request envelope posted to baseURL/operation, with
// connection/timeout failures classified transient and decode failures
// classified malformed.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport builds a transport with a dedicated per-call timeout,
// matching the teacher's NewHTTPTransport(baseURL, timeout) constructor.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (t *HTTPTransport) Call(ctx context.Context, operation string, args map[string]any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return malformedError(fmt.Errorf("encoding request: %w", err))
	}

	url := t.BaseURL + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return transientError(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// Connection refused, broken pipe, and client-side timeout all
		// surface here as *url.Error wrapping a lower-level net error;
		// every one of them is a transport failure per spec §4.5.
		return transientError(fmt.Errorf("operation %q: %w", operation, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientError(fmt.Errorf("reading response: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nonexistentError(operation)
	case http.StatusOK:
		// fall through to decode
	default:
		var ep errorPayload
		if json.Unmarshal(raw, &ep) == nil && ep.Message != "" {
			return applicationError(fmt.Errorf("%s: %s", ep.Code, ep.Message))
		}
		return applicationError(fmt.Errorf("operation %q: unexpected status %d", operation, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return malformedError(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
