package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"dash/internal/security/netutil"
)

// Response is one upstream reply. The body is kept raw because the two
// services wrap their payloads (and their error signatures) differently.
type Response struct {
	Status int
	Body   []byte
}

// Fetcher performs the HTTP calls against the upstream APIs. Every call
// carries a timeout so a stalled upstream cannot stall a whole sync cycle.
type Fetcher struct {
	client *http.Client
	logger *log.Logger
}

// NewFetcher builds a fetcher with tuned transport settings. Unless
// allowPrivate is set (tests against local stubs), dials into private
// address ranges are refused: continuation URLs come out of upstream
// response bodies and are not trusted to point at the public internet.
func NewFetcher(logger *log.Logger, timeout time.Duration, allowPrivate bool) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	dialContext := dialer.DialContext
	if !allowPrivate {
		dialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			if netutil.CheckHost(ips) {
				return nil, fmt.Errorf("refusing to dial private address %s", host)
			}
			return dialer.DialContext(ctx, network, addr)
		}
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout, Transport: transport, CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		}},
		logger: logger,
	}
}

// Get fetches a URL and returns the raw body. Non-2xx statuses are not
// transport errors: the services report auth and permission problems inside
// JSON bodies on 4xx replies, and the page parsers inspect those.
func (f *Fetcher) Get(ctx context.Context, url string) (*Response, error) {
	return f.do(ctx, http.MethodGet, url)
}

// Delete issues a DELETE, used by the deauthorization flows.
func (f *Fetcher) Delete(ctx context.Context, url string) (*Response, error) {
	return f.do(ctx, http.MethodDelete, url)
}

func (f *Fetcher) do(ctx context.Context, method, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Dash/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Size limit guards against a runaway upstream payload
	const maxBodyBytes = 5 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", url, err)
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}
