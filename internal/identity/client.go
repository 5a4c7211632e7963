// Package identity talks to the hosted one-time-code identity provider.
package identity

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

	"github.com/wayfarer/backend/internal/models"
)

// ProviderError is a non-2xx answer from the identity provider.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider: %d: %s", e.Status, e.Message)
}

// Transient reports whether the failure is server side and worth retrying.
func (e *ProviderError) Transient() bool {
	return e.Status >= http.StatusInternalServerError
}

// IsTransient reports whether err carries a transient ProviderError.
func IsTransient(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Transient()
}

// Client is a thin HTTP client for a GoTrue-compatible provider. It performs exactly
// one request per call; retry policy belongs to the caller.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// NewClient constructs a provider client. A nil httpClient gets a 10s timeout client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		now:     time.Now,
	}
}

// SendOTP asks the provider to email a one-time code, creating the account if needed.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": true}
	return c.do(ctx, http.MethodPost, "/auth/v1/otp", "", body, nil)
}

// VerifyOTP exchanges an emailed code for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (models.Session, error) {
	body := map[string]string{"type": "email", "email": email, "token": code}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/verify", "", body, &resp); err != nil {
		return models.Session{}, err
	}
	if resp.AccessToken == "" {
		return models.Session{}, errors.New("identity provider: verify returned no access token")
	}
	return resp.session(c.now()), nil
}

// GetUser resolves the user behind an access token. An expired or revoked token
// yields a 401 ProviderError.
func (c *Client) GetUser(ctx context.Context, accessToken string) (models.SessionUser, error) {
	var u userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return models.SessionUser{}, err
	}
	return u.toModel(), nil
}

// SignOut revokes the access token's session at the provider.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode identity request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProviderError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response %s: %w", path, err)
	}
	return nil
}

func decodeProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &payload)

	perr := &ProviderError{Status: resp.StatusCode, Code: payload.ErrorCode}
	if perr.Code == "" {
		perr.Code = payload.Error
	}
	for _, candidate := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
		if candidate != "" {
			perr.Message = candidate
			break
		}
	}
	if perr.Message == "" {
		perr.Message = strings.TrimSpace(string(raw))
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return perr
}

type userPayload struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	LastSignInAt time.Time `json:"last_sign_in_at"`
}

func (u userPayload) toModel() models.SessionUser {
	return models.SessionUser{
		ID:           u.ID,
		Email:        u.Email,
		CreatedAt:    u.CreatedAt.UTC(),
		LastSignInAt: u.LastSignInAt.UTC(),
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         userPayload `json:"user"`
}

func (t tokenResponse) session(now time.Time) models.Session {
	expires := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		expires = time.Unix(t.ExpiresAt, 0)
	}
	return models.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    expires.UTC(),
		User:         t.User.toModel(),
	}
}
