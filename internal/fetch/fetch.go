package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
)

// Client wraps http.Client and provides timeouts, a host policy gate,
// size caps, and limited retry on transient errors. The same client
// serves both the article markup request and every image request.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Policy is consulted before any request leaves the process.
	Policy *HostPolicy
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// MaxBodyBytes caps a single response body. Payloads that declare or
	// grow past the cap are rejected without being fully buffered.
	MaxBodyBytes int64

	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	// internal limiter initialized on first use when MaxConcurrent > 0
	limiter     chan struct{}
	limiterOnce sync.Once
}

// ErrBodyTooLarge marks a response rejected by the size cap.
var ErrBodyTooLarge = errors.New("response body exceeds size cap")

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// GetArticle retrieves the article markup at rawURL and decodes it to
// UTF-8 using the declared charset.
func (c *Client) GetArticle(ctx context.Context, rawURL string) ([]byte, error) {
	body, ct, err := c.get(ctx, rawURL, isHTMLContentType)
	if err != nil {
		return nil, err
	}
	r, err := charset.NewReader(bytes.NewReader(body), ct)
	if err != nil {
		// Undeclared or unknown charset: serve the bytes as-is.
		return body, nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return decoded, nil
}

// GetImage retrieves one image body. Non-image content types are
// rejected, as are SVG payloads, which cannot be rasterized here.
func (c *Client) GetImage(ctx context.Context, rawURL string) ([]byte, string, error) {
	return c.get(ctx, rawURL, isImageContentType)
}

func (c *Client) get(ctx context.Context, rawURL string, acceptCT func(string) bool) ([]byte, string, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, ct, err := c.tryOnce(ctx, rawURL, acceptCT)
		if err == nil {
			return body, ct, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, "", lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, acceptCT func(string) bool) ([]byte, string, error) {
	// Concurrency gate per client instance
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	// The policy gate is a precondition of every outbound call.
	if c.Policy == nil {
		return nil, "", errors.New("no host policy configured")
	}
	if err := c.Policy.Allow(req.URL); err != nil {
		return nil, "", err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpClient := c.getHTTPClient()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return nil, "", fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !acceptCT(contentType) {
		return nil, "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	// Reject oversized payloads on the declared length before reading.
	if c.MaxBodyBytes > 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > c.MaxBodyBytes {
				return nil, "", fmt.Errorf("%w: declared %d bytes", ErrBodyTooLarge, n)
			}
		}
	}

	var reader io.Reader = resp.Body
	if c.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if c.MaxBodyBytes > 0 && int64(len(b)) > c.MaxBodyBytes {
		return nil, "", fmt.Errorf("%w: observed over %d bytes", ErrBodyTooLarge, c.MaxBodyBytes)
	}
	return b, contentType, nil
}

func isTransient(err error) bool {
	// Only HTTP 5xx responses are retried; a deadline expiry counts
	// against the image and is not retried within its budget.
	return err != nil && strings.Contains(err.Error(), "server error:")
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Redirect targets go through the same policy gate.
		if c.Policy == nil {
			return errors.New("no host policy configured")
		}
		if err := c.Policy.Allow(req.URL); err != nil {
			return fmt.Errorf("redirect: %w", err)
		}
		return nil
	}
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func isImageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if !strings.HasPrefix(ct, "image/") {
		return false
	}
	// SVG is markup, not pixels.
	return !strings.HasPrefix(ct, "image/svg")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
		// should not happen, but avoid blocking
	}
}

// ParseRequestURL validates a request URL before any network activity.
func ParseRequestURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) || u.Host == "" {
		return nil, fmt.Errorf("not an absolute http(s) URL: %q", raw)
	}
	return u, nil
}
