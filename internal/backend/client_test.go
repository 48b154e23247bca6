package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_gateway/internal/config"
)

func testClient(url string, maxRetries int) *Client {
	return NewClient(config.BackendConfig{
		URL:            url,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     maxRetries,
		RetryBackoff:   time.Millisecond,
	}, nil)
}

func TestConvert_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convert", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/doc.pdf", req.Source.URL)
		assert.Equal(t, "markdown", req.Options.OutputFormat)

		json.NewEncoder(w).Encode(Result{
			Markdown:     "# Title",
			Pages:        3,
			ProcessingMS: 1500,
		})
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	result, err := client.Convert(context.Background(), Request{
		Source:  Source{URL: "https://example.com/doc.pdf"},
		Options: Options{OutputFormat: "markdown"},
	})
	require.NoError(t, err)
	assert.Equal(t, "# Title", result.Markdown)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 1500, result.ProcessingMS)
}

func TestConvert_TerminalFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported document type"})
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	_, err := client.Convert(context.Background(), Request{Source: Source{URL: "https://example.com/doc.xyz"}})
	require.Error(t, err)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "unsupported document type", be.Reason)
	assert.False(t, be.Retryable)
	assert.Equal(t, int32(1), calls.Load(), "terminal failures must not be retried")
}

func TestConvert_TransientSubmissionRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Result{Markdown: "ok", Pages: 1})
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	result, err := client.Convert(context.Background(), Request{Source: Source{URL: "https://example.com/doc.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Markdown)
	assert.Equal(t, int32(3), calls.Load())
}

func TestConvert_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	_, err := client.Convert(context.Background(), Request{Source: Source{URL: "https://example.com/doc.pdf"}})
	require.Error(t, err)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.True(t, be.Retryable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestConvert_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(config.BackendConfig{
		URL:            server.URL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     5,
		RetryBackoff:   time.Minute,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Convert(ctx, Request{Source: Source{URL: "https://example.com/doc.pdf"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL, 1)
	assert.NoError(t, client.Health(context.Background()))
}
