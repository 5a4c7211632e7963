package scrape

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrClientDisabled indicates the scraping provider is not configured.
var ErrClientDisabled = errors.New("scraping provider not configured")

// Actors names the provider actors used for each kind of run.
type Actors struct {
	Reel    string
	Profile string
	Details string
}

// Run identifies an asynchronous actor run.
type Run struct {
	ID        string `json:"id"`
	ActorID   string `json:"actId"`
	Status    string `json:"status"`
	DatasetID string `json:"defaultDatasetId"`
}

// Client starts actor runs on an Apify-style scraping provider. Every run
// registers a one-off webhook that delivers the run's dataset items back to us.
type Client struct {
	baseURL       string
	token         string
	actors        Actors
	webhookSecret string
	http          *http.Client
}

// NewClient constructs a Client. A nil httpClient falls back to http.DefaultClient.
func NewClient(baseURL, token string, actors Actors, webhookSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.apify.com"
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		actors:        actors,
		webhookSecret: webhookSecret,
		http:          httpClient,
	}
}

// StartReelScrape scrapes a single reel or post URL.
func (c *Client) StartReelScrape(ctx context.Context, reelURL, webhookURL string) (Run, error) {
	input := map[string]any{
		"directUrls":   []string{reelURL},
		"resultsType":  "posts",
		"resultsLimit": 1,
	}
	return c.start(ctx, c.actors.Reel, input, webhookURL)
}

// StartProfileScrape resolves usernames to full profiles.
func (c *Client) StartProfileScrape(ctx context.Context, usernames []string, webhookURL string) (Run, error) {
	if len(usernames) == 0 {
		return Run{}, errors.New("profile scrape: no usernames")
	}
	input := map[string]any{"usernames": usernames}
	return c.start(ctx, c.actors.Profile, input, webhookURL)
}

// StartProfileDetails scrapes the account behind a profile URL.
func (c *Client) StartProfileDetails(ctx context.Context, profileURL, webhookURL string) (Run, error) {
	input := map[string]any{
		"directUrls":  []string{profileURL},
		"resultsType": "details",
	}
	return c.start(ctx, c.actors.Details, input, webhookURL)
}

type webhookSpec struct {
	EventTypes      []string `json:"eventTypes"`
	RequestURL      string   `json:"requestUrl"`
	PayloadTemplate string   `json:"payloadTemplate,omitempty"`
	HeadersTemplate string   `json:"headersTemplate,omitempty"`
}

func (c *Client) start(ctx context.Context, actor string, input any, webhookURL string) (Run, error) {
	if c == nil || strings.TrimSpace(c.token) == "" {
		return Run{}, ErrClientDisabled
	}
	if strings.TrimSpace(actor) == "" {
		return Run{}, errors.New("actor id is required")
	}

	webhooks, err := c.encodeWebhook(webhookURL)
	if err != nil {
		return Run{}, err
	}

	q := url.Values{}
	q.Set("token", c.token)
	if webhooks != "" {
		q.Set("webhooks", webhooks)
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?%s", c.baseURL, url.PathEscape(strings.ReplaceAll(actor, "/", "~")), q.Encode())

	body, err := json.Marshal(input)
	if err != nil {
		return Run{}, fmt.Errorf("encode actor input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Run{}, fmt.Errorf("build actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Run{}, fmt.Errorf("start actor %s: %w", actor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Run{}, fmt.Errorf("start actor %s: status %d: %s", actor, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var envelope struct {
		Data Run `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Run{}, fmt.Errorf("decode actor run: %w", err)
	}
	return envelope.Data, nil
}

func (c *Client) encodeWebhook(webhookURL string) (string, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return "", nil
	}
	spec := webhookSpec{
		EventTypes:      []string{"ACTOR.RUN.SUCCEEDED"},
		RequestURL:      webhookURL,
		PayloadTemplate: "{{resource.defaultDatasetItems}}",
	}
	if c.webhookSecret != "" {
		headers, err := json.Marshal(map[string]string{WebhookSecretHeader: c.webhookSecret})
		if err != nil {
			return "", err
		}
		spec.HeadersTemplate = string(headers)
	}

	raw, err := json.Marshal([]webhookSpec{spec})
	if err != nil {
		return "", fmt.Errorf("encode webhook: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
