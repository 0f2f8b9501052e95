package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClient talks JSON to an evaluation service:
//
//	POST /v1/definitions                    -> {"definition_id"}
//	POST /v1/definitions/{id}/runs          -> {"run_id"}
//	GET  /v1/definitions/{id}/runs/{run_id} -> RunStatus
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if c == nil || hc == nil {
			return
		}
		c.httpClient = hc
	}
}

// NewHTTPClient builds a client for the service at baseURL.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote: empty service base url")
	}

	c := &HTTPClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// APIError is a non-2xx response from the evaluation service.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		return fmt.Sprintf("remote: api error (%s)", e.Status)
	}
	return fmt.Sprintf("remote: api error (%s): %s", e.Status, msg)
}

// CreateDefinition implements Client.
func (c *HTTPClient) CreateDefinition(ctx context.Context, def Definition) (string, error) {
	var out struct {
		DefinitionID string `json:"definition_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/definitions", def, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.DefinitionID) == "" {
		return "", errors.New("remote: service returned empty definition id")
	}
	return out.DefinitionID, nil
}

// CreateRun implements Client.
func (c *HTTPClient) CreateRun(ctx context.Context, definitionID string, run RunRequest) (string, error) {
	if strings.TrimSpace(definitionID) == "" {
		return "", errors.New("remote: empty definition id")
	}

	var out struct {
		RunID string `json:"run_id"`
	}
	path := "/v1/definitions/" + definitionID + "/runs"
	if err := c.do(ctx, http.MethodPost, path, run, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.RunID) == "" {
		return "", errors.New("remote: service returned empty run id")
	}
	return out.RunID, nil
}

// GetRunStatus implements Client.
func (c *HTTPClient) GetRunStatus(ctx context.Context, definitionID, runID string) (*RunStatus, error) {
	if strings.TrimSpace(definitionID) == "" {
		return nil, errors.New("remote: empty definition id")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("remote: empty run id")
	}

	var out RunStatus
	path := "/v1/definitions/" + definitionID + "/runs/" + runID
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c == nil || c.httpClient == nil {
		return errors.New("remote: nil http client")
	}
	if ctx == nil {
		return errors.New("remote: nil context")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("remote: decode response: %w", err)
		}
	}
	return nil
}
