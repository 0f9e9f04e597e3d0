// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SendRequest is the JSON body posted to open a stream.
type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	EnableThinking bool   `json:"enable_thinking,omitempty"`
}

// Streamer opens the SSE connection for a send. Satisfied by
// [*Client] in production and by in-memory fakes in tests and the
// replay tool.
type Streamer interface {
	OpenStream(ctx context.Context, request SendRequest) (io.ReadCloser, error)
}

// TransportError is a connection-level failure: a non-200 response,
// a dropped connection, or an in-stream error event. The Overloaded
// predicate separates provider-capacity failures, which get a
// friendlier user-facing message, from generic ones.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 for mid-stream failures.
	StatusCode int

	// Kind is the server's error type string, if it sent one.
	Kind string

	// Message is the human-readable description.
	Message string
}

func (err *TransportError) Error() string {
	if err.StatusCode != 0 {
		if err.Kind != "" {
			return fmt.Sprintf("stream: HTTP %d: %s: %s", err.StatusCode, err.Kind, err.Message)
		}
		return fmt.Sprintf("stream: HTTP %d: %s", err.StatusCode, err.Message)
	}
	return fmt.Sprintf("stream: %s", err.Message)
}

// overloadKeywords mark provider-capacity failures. Matched against
// the whole error payload because in-stream errors arrive without an
// HTTP status.
var overloadKeywords = []string{"overloaded", "capacity", "rate limit", "529"}

// Overloaded reports whether this looks like a provider-capacity
// failure rather than a broken connection.
func (err *TransportError) Overloaded() bool {
	if err.StatusCode == http.StatusTooManyRequests || err.StatusCode == 529 {
		return true
	}
	haystack := strings.ToLower(err.Kind + " " + err.Message)
	for _, keyword := range overloadKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// User-facing notices. The chat surface shows these inline and always
// re-enables the input; no transport failure leaves the UI stuck.
const (
	noticeOverloaded = "The health team is handling a lot of requests right now. Please try again in a moment."
	noticeGeneric    = "The connection to the health team was interrupted. Please send your message again."
)

// UserNotice maps a transport failure to the banner text shown to the
// user.
func UserNotice(err error) string {
	if transportErr, ok := err.(*TransportError); ok && transportErr.Overloaded() {
		return noticeOverloaded
	}
	return noticeGeneric
}

// Client opens SSE streams against the insight backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the given base URL. If httpClient is
// nil, http.DefaultClient is used; if logger is nil, slog.Default().
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// OpenStream posts the user message and returns the SSE response
// body. The caller owns the body and must close it. Non-200 responses
// decode the common {"error":{"type","message"}} envelope into a
// [*TransportError].
func (client *Client) OpenStream(ctx context.Context, request SendRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("stream: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		client.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stream: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "text/event-stream")

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("stream: sending request: %w", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readTransportError(httpResponse)
	}

	client.logger.Debug("stream opened", "conversation_id", request.ConversationID)
	return httpResponse.Body, nil
}

// readTransportError parses an error response body in the common
// envelope format {"error":{"type":"...","message":"..."}}. Bodies
// that don't match fall back to raw text.
func readTransportError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return &TransportError{
			StatusCode: httpResponse.StatusCode,
			Kind:       envelope.Error.Type,
			Message:    envelope.Error.Message,
		}
	}

	return &TransportError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
