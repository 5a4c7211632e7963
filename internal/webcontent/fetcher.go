package webcontent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/wayfarer/backend/internal/httpclient"
	"github.com/wayfarer/backend/internal/scrape"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; WayfarerBot/1.0; +https://wayfarer.app)"
	maxBodyBytes     = 4 << 20
)

// Fetcher extracts title, description and preview image from a web page. Page URLs
// come from users, so HTTP must refuse non-public addresses; a nil HTTP gets a
// client from httpclient with BlockPrivateNetworks set.
type Fetcher struct {
	HTTP      *http.Client
	UserAgent string
}

// Fetch downloads pageURL and parses its metadata.
func (f Fetcher) Fetch(ctx context.Context, pageURL string) (scrape.WebContent, error) {
	client := f.HTTP
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: 15 * time.Second, RetryMax: 1, BlockPrivateNetworks: true})
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return scrape.WebContent{}, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return scrape.WebContent{}, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return scrape.WebContent{}, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return scrape.WebContent{}, fmt.Errorf("fetch page: unsupported content type %q", ct)
	}

	content, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return scrape.WebContent{}, err
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if content.URL == "" {
		content.URL = finalURL
	}
	content.Image = absolutize(finalURL, content.Image)
	if content.SiteName == "" {
		if u, err := url.Parse(finalURL); err == nil {
			content.SiteName = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	return content, nil
}

// Parse reads OpenGraph tags, falling back to <title> and the description meta.
func Parse(r io.Reader) (scrape.WebContent, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return scrape.WebContent{}, fmt.Errorf("parse page: %w", err)
	}

	var (
		out         scrape.WebContent
		title       string
		description string
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				content := strings.TrimSpace(attr(n, "content"))
				switch attr(n, "property") {
				case "og:title":
					setOnce(&out.Title, content)
				case "og:description":
					setOnce(&out.Description, content)
				case "og:image":
					setOnce(&out.Image, content)
				case "og:url":
					setOnce(&out.URL, content)
				case "og:site_name":
					setOnce(&out.SiteName, content)
				}
				if strings.EqualFold(attr(n, "name"), "description") {
					setOnce(&description, content)
				}
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					setOnce(&title, strings.TrimSpace(n.FirstChild.Data))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	setOnce(&out.Title, title)
	setOnce(&out.Description, description)
	return out, nil
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func absolutize(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
