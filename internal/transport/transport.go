// Package transport is the HTTP layer between resource handlers and the SWAMP
// web service.
//
// A Client is bound to one base URL and one cookie jar. Responses are
// classified once here: non-2xx statuses become *errdefs.HTTPError, I/O
// failures become *errdefs.TransportError and non-empty bodies that are not
// JSON become *errdefs.NoJSONError.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/data-douser/swamp-go/internal/errdefs"
)

// AcceptHeader is sent on every request.
const AcceptHeader = "application/json, text/javascript, */*; q=0.01"

const maxErrorBody = 4096

// Options configures a Client.
type Options struct {
	// Timeout bounds each request (default: 60 seconds).
	Timeout time.Duration

	// ProxyURL routes requests through an HTTP proxy when set.
	ProxyURL string

	// CAFile is an optional PEM bundle trusted in addition to the system pool.
	CAFile string

	// Headers are added to every request. A "Host" entry overrides the
	// request host.
	Headers map[string]string

	// RetryAttempts is the number of tries for idempotent requests
	// (default: 3).
	RetryAttempts int

	// RetryBaseDelay is the first backoff delay (default: 500ms).
	RetryBaseDelay time.Duration

	// PoolSize caps the number of idle clients kept for reuse (default: 4).
	PoolSize int

	// UserAgent is sent on every request when set.
	UserAgent string

	Logger *slog.Logger
}

// Response is a classified service response. At most one of Object and
// Array is set.
type Response struct {
	StatusCode int
	Object     map[string]any
	Array      []any
	Body       []byte
	Cookies    []*http.Cookie
}

// HasJSON reports whether the body decoded as a JSON object or array.
func (r *Response) HasJSON() bool { return r.Object != nil || r.Array != nil }

// Client issues requests relative to a base URL.
type Client struct {
	base      *url.URL
	jar       *cookiejar.Jar
	rt        http.RoundTripper
	timeout   time.Duration
	headers   map[string]string
	userAgent string
	attempts  int
	baseDelay time.Duration
	poolSize  int
	logger    *slog.Logger

	mu   sync.Mutex
	pool []*http.Client

	cookieMu sync.Mutex
	cookies  map[string]Cookie
}

// New creates a Client for baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &errdefs.ClientOptionError{Msg: "transport: base URL is required"}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("transport: invalid base URL %q: %v", baseURL, err)}
	}

	jar, err := newJar()
	if err != nil {
		return nil, fmt.Errorf("transport: cookie jar: %w", err)
	}

	rt, err := newRoundTripper(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		base:      base,
		jar:       jar,
		rt:        rt,
		timeout:   opts.Timeout,
		headers:   opts.Headers,
		userAgent: opts.UserAgent,
		attempts:  opts.RetryAttempts,
		baseDelay: opts.RetryBaseDelay,
		poolSize:  opts.PoolSize,
		logger:    logger,
		cookies:   make(map[string]Cookie),
	}
	if c.timeout == 0 {
		c.timeout = 60 * time.Second
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.baseDelay == 0 {
		c.baseDelay = 500 * time.Millisecond
	}
	if c.poolSize <= 0 {
		c.poolSize = 4
	}
	return c, nil
}

func newRoundTripper(opts Options) (http.RoundTripper, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("transport: read CA file: %v", err)}
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &errdefs.ClientOptionError{Msg: "transport: CA file holds no certificates"}
		}
		tr.TLSClientConfig.RootCAs = pool
	}

	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("transport: invalid proxy URL: %v", err)}
		}
		tr.Proxy = http.ProxyURL(proxy)
	}
	return tr, nil
}

// BaseURL returns the base URL with its trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

// URL resolves endpoint against the base URL.
func (c *Client) URL(endpoint string) string {
	return c.base.String() + strings.TrimPrefix(endpoint, "/")
}

// newJar builds a cookie jar keyed by registrable domain. cookiejar.New
// never fails for a non-nil public suffix list.
func newJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func (c *Client) acquire() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.pool); n > 0 {
		hc := c.pool[n-1]
		c.pool = c.pool[:n-1]
		return hc
	}
	return &http.Client{Transport: c.rt, Jar: c.jar, Timeout: c.timeout}
}

func (c *Client) release(hc *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pool) < c.poolSize {
		c.pool = append(c.pool, hc)
	}
}

// send performs one request and returns the raw response. The caller closes
// the body.
func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, string, error) {
	target := c.URL(endpoint)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, target, &errdefs.TransportError{Op: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	hc := c.acquire()
	defer c.release(hc)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", target, "error", err)
		return nil, target, &errdefs.TransportError{Op: method, URL: target, Err: err}
	}
	c.logger.Debug("request", "method", method, "url", target,
		"status", resp.StatusCode, "duration", time.Since(start))
	c.recordCookies(resp.Cookies())
	return resp, target, nil
}

// Do performs a request and classifies the response.
func (c *Client) Do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*Response, error) {
	resp, target, err := c.send(ctx, method, endpoint, body, contentType)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // Best effort close
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errdefs.TransportError{Op: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &errdefs.HTTPError{StatusCode: resp.StatusCode, URL: target, Body: string(data)}
	}

	out := &Response{StatusCode: resp.StatusCode, Body: data, Cookies: resp.Cookies()}
	if err := decodeBody(out, target); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeBody(r *Response, target string) error {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	switch trimmed[0] {
	case '{':
		if err := dec.Decode(&r.Object); err != nil {
			return &errdefs.NoJSONError{URL: target, Body: string(trimmed)}
		}
	case '[':
		if err := dec.Decode(&r.Array); err != nil {
			return &errdefs.NoJSONError{URL: target, Body: string(trimmed)}
		}
		if r.Array == nil {
			r.Array = []any{}
		}
	default:
		return &errdefs.NoJSONError{URL: target, Body: string(trimmed)}
	}
	return nil
}

// Get issues a GET, retrying transport failures with backoff.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var resp *Response
	err := retry(ctx, c.attempts, c.baseDelay, func() error {
		var err error
		resp, err = c.Do(ctx, http.MethodGet, endpoint, nil, "")
		return err
	})
	return resp, err
}

// PostForm issues a form-encoded POST.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// PutForm issues a form-encoded PUT.
func (c *Client) PutForm(ctx context.Context, endpoint string, form url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// PostJSON issues a POST with v marshaled as the JSON body.
func (c *Client) PostJSON(ctx context.Context, endpoint string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), "application/json")
}

// PutJSON issues a PUT with v marshaled as the JSON body.
func (c *Client) PutJSON(ctx context.Context, endpoint string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal body: %w", err)
	}
	return c.Do(ctx, http.MethodPut, endpoint, bytes.NewReader(body), "application/json")
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, "")
}

// Upload POSTs a multipart form holding fields and one file part read from r.
func (c *Client) Upload(ctx context.Context, endpoint string, fields map[string]string, fileField, filename string, r io.Reader) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("transport: write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, fmt.Errorf("transport: create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("transport: close multipart: %w", err)
	}
	return c.Do(ctx, http.MethodPost, endpoint, &buf, mw.FormDataContentType())
}

// Stream GETs endpoint and copies the body to w, returning the byte count.
func (c *Client) Stream(ctx context.Context, endpoint string, w io.Writer) (int64, error) {
	resp, target, err := c.send(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // Best effort close
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &errdefs.HTTPError{StatusCode: resp.StatusCode, URL: target, Body: string(data)}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &errdefs.TransportError{Op: http.MethodGet, URL: target, Err: err}
	}
	return n, nil
}
