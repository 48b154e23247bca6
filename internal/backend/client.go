package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"doc_gateway/internal/config"
	"doc_gateway/internal/utils"
)

// Source identifies the document to convert: exactly one of URL or Data
// (base64 file content plus filename) is set.
type Source struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Options controls the conversion output.
type Options struct {
	OutputFormat    string `json:"output_format"` // markdown | json | both
	EnableOCR       bool   `json:"enable_ocr"`
	TableExtraction bool   `json:"enable_table_extraction"`
}

// Request is one conversion submission.
type Request struct {
	Source  Source  `json:"source"`
	Options Options `json:"options"`
}

// Result is a successful conversion.
type Result struct {
	Markdown     string          `json:"markdown,omitempty"`
	JSON         json.RawMessage `json:"json,omitempty"`
	Pages        int             `json:"pages"`
	ProcessingMS int             `json:"processing_time_ms"`
}

// Error is a structured conversion failure. Retryable reports whether the
// same document could plausibly succeed on resubmission.
type Error struct {
	Reason    string
	Retryable bool
	Status    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("conversion failed: %s", e.Reason)
}

// Client talks to the conversion engine. Submission-level transport errors
// are retried with capped exponential backoff; once the engine has accepted
// a document the attempt is never repeated here, so a document is converted
// at most once per gateway request.
type Client struct {
	baseURL      string
	client       *http.Client
	maxRetries   int
	retryBackoff time.Duration
	logger       *utils.Logger
}

func NewClient(cfg config.BackendConfig, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.NewLogger("backend", utils.Info)
	}
	return &Client{
		baseURL: cfg.URL,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       logger,
	}
}

// Convert submits the document and returns the conversion output. A nil
// error means the engine produced a result; otherwise the error is either
// a *Error from the engine or a transport failure.
func (c *Client) Convert(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversion request: %w", err)
	}

	backoff := c.retryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.submit(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryableSubmission(err) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		c.logger.Warn("conversion submission failed, retrying",
			"attempt", attempt, "backoff", backoff.String(), "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, lastErr
}

func (c *Client) submit(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp.StatusCode, respBody)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode conversion result: %w", err)
	}
	return &result, nil
}

// Health checks the engine's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

// classifyFailure maps an engine error response to a *Error. 5xx statuses
// are retryable from the caller's point of view; 4xx means the document
// itself was rejected.
func classifyFailure(status int, body []byte) *Error {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	reason := fmt.Sprintf("backend returned status %d", status)
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			reason = payload.Error
		} else if payload.Detail != "" {
			reason = payload.Detail
		}
	}
	return &Error{
		Reason:    reason,
		Retryable: status >= 500,
		Status:    status,
	}
}

// retryableSubmission reports whether the submission never reached the
// engine's converter, making a retry safe.
func retryableSubmission(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Status == http.StatusBadGateway ||
			be.Status == http.StatusServiceUnavailable ||
			be.Status == http.StatusGatewayTimeout
	}
	return utils.IsRecoverableError(err)
}
