package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wayfarer/backend/internal/httpclient"
	"github.com/wayfarer/backend/internal/logging"
)

// Normalizer canonicalises submitted URLs before classification and dispatch.
// Share and short links are resolved by following their redirects, so HTTP must
// refuse non-public addresses. A nil HTTP gets a guarded httpclient.
type Normalizer struct {
	HTTP *http.Client
}

// Normalize returns the canonical form of raw. Instagram share links and Google
// Maps short links are expanded; Instagram /p/ paths become /reel/ paths.
func (n Normalizer) Normalize(ctx context.Context, raw string) (string, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return "", err
	}

	if needsResolution(u) {
		resolved, err := n.resolve(ctx, u)
		if err != nil {
			logging.FromContext(ctx).Warn("could not resolve short link, keeping original", "url", u.String(), "error", err)
		} else {
			u = resolved
		}
	}

	if Classify(u.String()) == PlatformInstagram {
		u.Path = rewritePostPath(u.Path)
		u.RawPath = ""
		u.RawQuery = ""
		u.Fragment = ""
	}
	return u.String(), nil
}

// ParseURL validates an absolute http(s) URL.
func ParseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func needsResolution(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "instagram.com" && strings.HasPrefix(u.Path, "/share/"):
		return true
	case host == "maps.app.goo.gl":
		return true
	case host == "goo.gl" && strings.HasPrefix(u.Path, "/maps"):
		return true
	}
	return false
}

func (n Normalizer) resolve(ctx context.Context, u *url.URL) (*url.URL, error) {
	client := n.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: 10 * time.Second, BlockPrivateNetworks: true})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; WayfarerBot/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("follow redirects: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.Request == nil || resp.Request.URL == nil {
		return nil, fmt.Errorf("follow redirects: no final request")
	}
	final := *resp.Request.URL
	if final.String() == u.String() {
		return nil, fmt.Errorf("follow redirects: link did not redirect (status %d)", resp.StatusCode)
	}
	return &final, nil
}

// rewritePostPath turns a post path into a reel path. The post segment sits first
// (/p/<code>) or after the author (/<user>/p/<code>), the same positions
// ClassifyInstagram accepts.
func rewritePostPath(p string) string {
	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	switch {
	case len(segments) >= 2 && strings.EqualFold(segments[0], "p"):
		segments[0] = "reel"
	case len(segments) >= 3 && strings.EqualFold(segments[1], "p"):
		segments[1] = "reel"
	default:
		return p
	}

	out := "/" + strings.Join(segments, "/")
	if strings.HasSuffix(p, "/") {
		out += "/"
	}
	return out
}
