// pkg/fetch/client.go
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arc-language/benpak/pkg/core"
	"go.trai.ch/zerr"
)

// DefaultUserAgent is sent with every request
const DefaultUserAgent = "benpak/1.0"

// Client handles HTTP requests to download hosts and release APIs
type Client struct {
	httpClient  *http.Client
	probeClient *http.Client
	userAgent   string
}

// NewClient creates a client without an overall request timeout, so long
// transfers are bounded only by the caller's context
func NewClient() *Client {
	return NewClientWithTimeout(0)
}

// NewClientWithTimeout creates a client with a custom overall timeout
func NewClientWithTimeout(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		probeClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: DefaultUserAgent,
	}
}

// WithUserAgent returns a copy of c sending ua
func (c *Client) WithUserAgent(ua string) *Client {
	cp := *c
	cp.userAgent = ua
	return &cp
}

// Get performs an HTTP GET request. Non-2xx responses are a NetworkError.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.GetWithHeaders(ctx, url, nil)
}

// GetWithHeaders performs an HTTP GET request with custom headers
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, url, headers)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, core.E(core.KindNetwork, "GET", statusError(url, resp.StatusCode))
	}

	return resp, nil
}

// Head performs an HTTP HEAD request. With follow=false the first response is
// returned as-is, so redirects can be inspected.
func (c *Client) Head(ctx context.Context, url string, follow bool) (*http.Response, error) {
	hc := c.httpClient
	if !follow {
		hc = c.probeClient
	}
	return c.do(ctx, hc, http.MethodHead, url, nil)
}

// GetJSON fetches a URL and unmarshals the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, v interface{}) error {
	resp, err := c.GetWithHeaders(ctx, url, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return core.E(core.KindNetwork, "GET", zerr.With(zerr.Wrap(err, "decoding JSON"), "url", url))
	}

	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, core.E(core.KindConfiguration, method, zerr.With(zerr.Wrap(err, "creating request"), "url", url))
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classify(ctx, method, url, err)
	}

	return resp, nil
}

func classify(ctx context.Context, op, url string, err error) error {
	if ctx.Err() != nil {
		return core.E(core.KindCancelled, op, zerr.With(zerr.Wrap(ctx.Err(), "request aborted"), "url", url))
	}
	return core.E(core.KindNetwork, op, zerr.With(zerr.Wrap(err, "performing request"), "url", url))
}

func statusError(url string, code int) error {
	err := zerr.New(fmt.Sprintf("unexpected status: %d %s", code, http.StatusText(code)))
	return zerr.With(zerr.With(err, "url", url), "status", code)
}
