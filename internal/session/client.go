package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"xstudio-chat-backend/internal/types"
)

// Transport streams an assistant reply for one message. onSnapshot receives
// each accumulated snapshot in order; the caller replaces its buffer with
// every call.
type Transport interface {
	Stream(ctx context.Context, message string, history []types.Turn, onSnapshot func(string)) error
}

// HTTPTransport talks to the chat endpoint over the server-push event
// protocol.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: the body is a long-lived stream. Cancellation
		// comes from ctx.
		client: &http.Client{Timeout: 0},
	}
}

func (t *HTTPTransport) Stream(ctx context.Context, message string, history []types.Turn, onSnapshot func(string)) error {
	body, err := json.Marshal(types.ChatRequest{Message: message, ConversationHistory: history})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			if apiErr.Message != "" {
				return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("chat request failed: HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sawSentinel := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == types.Sentinel {
			sawSentinel = true
			break
		}
		var frame types.StreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Skip malformed frames rather than aborting the stream.
			continue
		}
		onSnapshot(frame.Content)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	if !sawSentinel {
		return fmt.Errorf("stream ended without terminal sentinel")
	}
	return nil
}

// Health checks the server's liveness surface and returns the active model
// identifier.
func (t *HTTPTransport) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var health types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", err
	}
	return health.Model, nil
}
