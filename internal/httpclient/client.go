// Package httpclient builds the outbound HTTP clients used for third-party providers.
package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options tune a provider client.
type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
	// BlockPrivateNetworks refuses connections to non-public addresses. Set it for
	// clients that fetch user-submitted URLs. Proxies from the environment are
	// ignored so the guarded dial is the real destination.
	BlockPrivateNetworks bool
}

// New returns an *http.Client that retries connection errors, 429s and 5xx answers
// with jittered exponential backoff.
func New(opts Options) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.BlockPrivateNetworks {
		if transport, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			transport.Proxy = nil
			transport.DialContext = (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
				Control:   publicOnly,
			}).DialContext
		}
		rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			if errors.Is(err, ErrBlockedAddress) {
				return false, nil
			}
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
	}
	return rc.StandardClient()
}
