package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inodb/vibe-varseq/internal/tensor"
)

// DefaultTimeout bounds a single prediction request.
const DefaultTimeout = 5 * time.Minute

// HTTPModel is a model served over HTTP. Requests and responses carry
// tensors as .npz archives.
type HTTPModel struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPModel creates a client for the model server at baseURL.
func NewHTTPModel(baseURL string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPModel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HTTPLoader returns a Loader that waits for the server at baseURL to
// report healthy. The server keeps the model resident; "loading" it means
// confirming it is ready to serve.
func HTTPLoader(baseURL string, timeout time.Duration) Loader {
	return func(ctx context.Context) (Model, error) {
		m := NewHTTPModel(baseURL, timeout)
		if err := m.Health(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Health checks GET {baseURL}/health.
func (m *HTTPModel) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server not ready (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Predict posts x to {baseURL}/predict and decodes the output tensor.
func (m *HTTPModel) Predict(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	var body bytes.Buffer
	if err := tensor.Encode(&body, x); err != nil {
		return tensor.Tensor{}, fmt.Errorf("encode input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", &body)
	if err != nil {
		return tensor.Tensor{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tensor.Tensor{}, fmt.Errorf("model server error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	out, err := tensor.Decode(data)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("decode model response: %w", err)
	}
	return out, nil
}
