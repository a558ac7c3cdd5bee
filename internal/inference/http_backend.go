package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPBackend вызывает POST <base>/inference.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPBackend(baseURL, apiKey string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (b *HTTPBackend) Predict(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/inference", bytes.NewReader(body))
	if err != nil {
		return BackendResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	res, err := b.client.Do(httpReq)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("inference call failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return BackendResponse{}, &ThrottleError{
			RetryAfter: retryAfter(res.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("%w: %d", ErrBackendStatus, res.StatusCode),
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return BackendResponse{}, fmt.Errorf("%w: %d %s", ErrBackendStatus, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var m map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		return BackendResponse{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return parseResponse(m)
}

// retryAfter понимает только секунды; прочее — короткая пауза.
func retryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 100 * time.Millisecond
}
