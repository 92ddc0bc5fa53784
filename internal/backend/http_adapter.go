package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 8 << 20

// HTTPAdapter posts the request payload to a provider endpoint and extracts
// the generated result from the JSON reply.
type HTTPAdapter struct {
	endpoint   *url.URL
	client     *http.Client
	headers    map[string]string
	resultPath string
}

// HTTPOption customizes an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithHTTPClient replaces the default client. Deadlines still come from ctx.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) { a.client = c }
}

// WithHeaders sets static headers sent with every call, typically auth.
func WithHeaders(h map[string]string) HTTPOption {
	return func(a *HTTPAdapter) {
		for k, v := range h {
			a.headers[k] = v
		}
	}
}

// WithResultPath sets a gjson path selecting the result from the provider
// reply, e.g. "choices.0.message.content". Empty means the whole body.
func WithResultPath(path string) HTTPOption {
	return func(a *HTTPAdapter) { a.resultPath = path }
}

// NewHTTPAdapter builds an adapter for endpoint.
func NewHTTPAdapter(endpoint *url.URL, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		endpoint: endpoint,
		client:   &http.Client{},
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke implements Adapter.
func (a *HTTPAdapter) Invoke(ctx context.Context, capability Capability, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Capability", string(capability))
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("upstream status %d", res.StatusCode)
	}

	if a.resultPath == "" {
		return body, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("upstream returned invalid JSON")
	}

	result := gjson.GetBytes(body, a.resultPath)
	if !result.Exists() {
		return nil, fmt.Errorf("result path %q missing from upstream reply", a.resultPath)
	}
	if result.Type == gjson.String {
		return []byte(result.String()), nil
	}
	return []byte(result.Raw), nil
}
