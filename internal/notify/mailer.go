package notify

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

// ErrMailerDisabled is returned when no API key is configured.
var ErrMailerDisabled = errors.New("mailer disabled")

// Message is a single transactional email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer posts messages to a Resend-style email API.
type HTTPMailer struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

// NewHTTPMailer constructs a mailer. client should retry transport failures and 5xx
// answers (see httpclient.New); nil uses http.DefaultClient.
func NewHTTPMailer(baseURL, apiKey, from string, client *http.Client) *HTTPMailer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMailer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		client:  client,
	}
}

// Send delivers msg. Delivery is fire-and-forget; a 2xx answer is the only confirmation.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.apiKey == "" {
		return ErrMailerDisabled
	}
	if len(msg.To) == 0 {
		return errors.New("mailer: message has no recipients")
	}

	payload := struct {
		From string `json:"from"`
		Message
	}{From: m.from, Message: msg}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("send email: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
