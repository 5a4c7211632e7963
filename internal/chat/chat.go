package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrDisabled indicates no upstream chat model is configured.
var ErrDisabled = errors.New("chat upstream not configured")

const systemPrompt = "You are Wayfarer, a travel companion. Give concise, practical travel advice."

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a conversation submitted by the client.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Validate checks the conversation is non-empty and uses known roles.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages are required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return fmt.Errorf("message %d has unsupported role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("message %d is empty", i)
		}
	}
	return nil
}

// UpstreamError is a non-2xx answer from the model provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat upstream: status %d: %s", e.Status, e.Body)
}

// Client opens streaming completions against an OpenAI-compatible endpoint.
type Client struct {
	URL    string
	APIKey string
	Model  string
	HTTP   *http.Client
}

// Stream starts a streamed completion. The caller owns the returned body and
// must close it.
func (c Client) Stream(ctx context.Context, req Request) (io.ReadCloser, string, error) {
	if strings.TrimSpace(c.URL) == "" || strings.TrimSpace(c.APIKey) == "" {
		return nil, "", ErrDisabled
	}
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	messages := append([]Message{{Role: "system", Content: systemPrompt}}, req.Messages...)
	payload := map[string]any{
		"model":    c.Model,
		"messages": messages,
		"stream":   true,
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("chat upstream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	return resp.Body, contentType, nil
}
