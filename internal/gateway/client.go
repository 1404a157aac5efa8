// Package gateway is the single path through which the client talks to the
// finance backend. It attaches the session credential, and a 401 on an
// authenticated call purges the session and sends the user to the login
// view.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finboard/internal/log"
	"finboard/internal/metrics"
)

const maxErrorBody = 1 << 20

// Session is the credential holder the gateway reads from and reports
// authorization failures to.
type Session interface {
	Token() string
	// Invalidate drops the credential if sentToken is still the current
	// one and reports whether it did.
	Invalidate(ctx context.Context, sentToken string) bool
}

// Navigator is told when the user has to be sent back to the login view.
type Navigator interface {
	Unauthorized(ctx context.Context)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	session   Session
	navigator Navigator
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			clone := *hc
			c.http = &clone
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.WithComponent(log.ComponentGateway)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.Default(log.ComponentGateway),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Transport = newTracingTransport(c.http.Transport, c.logger, c.metrics)
	return c, nil
}

// Bind connects the client to the session it authenticates with and the
// navigator it redirects through. Either may be nil.
func (c *Client) Bind(s Session, n Navigator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.navigator = n
}

func (c *Client) bound() (Session, Navigator) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.navigator
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	method string
	// route is the path template used for metrics and logs.
	route       string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// anonymous calls exchange credentials. They never carry a token and
	// their 401s are plain bad-credential errors.
	anonymous bool
}

func jsonCall(method, route, path string, payload any) (call, error) {
	c := call{method: method, route: route, path: path}
	if payload == nil {
		return c, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return c, fmt.Errorf("encode %s request: %w", route, err)
	}
	c.body = bytes.NewReader(body)
	c.contentType = "application/json"
	return c, nil
}

// do sends the call and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	req, err := http.NewRequestWithContext(withRoute(ctx, cl.route), cl.method, target, cl.body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", cl.route, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}

	session, navigator := c.bound()
	var sent string
	if !cl.anonymous && session != nil {
		sent = session.Token()
		if sent != "" {
			req.Header.Set("Authorization", "Bearer "+sent)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: cl.method, Route: cl.route, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusUnauthorized && !cl.anonymous {
			c.unauthorized(ctx, session, navigator, sent)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s response: empty body", cl.route)
		}
		return fmt.Errorf("decode %s response: %w", cl.route, err)
	}
	return nil
}

// unauthorized runs the purge path once per credential: concurrent
// failures for the same token, and failures for a token that has already
// been replaced, leave the session alone.
func (c *Client) unauthorized(ctx context.Context, session Session, navigator Navigator, sent string) {
	if session == nil || !session.Invalidate(ctx, sent) {
		return
	}
	c.metrics.AuthFailure()
	c.logger.WarnContext(ctx, "Credential rejected by backend, session purged",
		log.NewFields().
			WithOperation(log.OpInvalidate).
			WithErrorType(log.ErrorTypeAuth).
			ToSlice()...)
	if navigator != nil {
		navigator.Unauthorized(ctx)
	}
}
