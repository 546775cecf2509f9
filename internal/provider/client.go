package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pagware/payment-gateway/internal/config"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrRecordNotFound  = errors.New("provider has no record of this payment")
)

type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
}

type providerErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error [%s]: %s (status: %d)", e.Provider, e.Code, e.Message, e.StatusCode)
}

func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type httpClient struct {
	provider string
	baseURL  string
	client   *http.Client
}

func newHTTPClient(name string, cfg config.ProviderConfig) *httpClient {
	return &httpClient{
		provider: name,
		baseURL:  cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func getJSON[Resp any](c *httpClient, ctx context.Context, path string) (*Resp, error) {
	return withRetry(ctx, func(ctx context.Context) (*Resp, error) {
		return doGetJSON[Resp](c, ctx, path)
	})
}

// postJSON is not retried: create-style calls are not idempotent on the
// provider side.
func postJSON[Resp any](c *httpClient, ctx context.Context, path string, body any) (*Resp, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error encoding request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse[Resp](c, resp)
}

func doGetJSON[Resp any](c *httpClient, ctx context.Context, path string) (*Resp, error) {
	url := c.baseURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse[Resp](c, resp)
}

func decodeResponse[Resp any](c *httpClient, resp *http.Response) (*Resp, error) {
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRecordNotFound
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		var errResp providerErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("%s returned status %d: %s", c.provider, resp.StatusCode, string(body))
		}
		return nil, &ProviderError{
			Provider:   c.provider,
			Code:       errResp.Err,
			Message:    errResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var decoded Resp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &decoded, nil
}
