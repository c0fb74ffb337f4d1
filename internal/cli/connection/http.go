package connection

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
	"time"

	"github.com/yndnr/tokgate/internal/infra/buildinfo"
	"github.com/yndnr/tokgate/internal/server/httpserver"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
)

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes bounds response bodies read by the client.
const maxBodyBytes = 1 << 20

// APIError is a non-2xx response from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	s := fmt.Sprintf("[%s] %s", e.Code, msg)
	if e.Code == "" {
		s = fmt.Sprintf("request failed with status %d: %s", e.Status, msg)
	}
	if e.RequestID != "" {
		s += " (request id " + e.RequestID + ")"
	}
	return s
}

// HTTPClient talks to an auth core.
type HTTPClient struct {
	baseURL       string
	adminToken    string
	internalToken string
	client        *http.Client
	userAgent     string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAdminToken sends token as X-Admin-Token.
func WithAdminToken(token string) Option {
	return func(c *HTTPClient) { c.adminToken = token }
}

// WithInternalToken sends token as X-Internal-Token.
func WithInternalToken(token string) Option {
	return func(c *HTTPClient) { c.internalToken = token }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// NewHTTPClient creates a client for server. A bare host:port gets http://.
func NewHTTPClient(server string, opts ...Option) (*HTTPClient, error) {
	baseURL := strings.TrimSpace(server)
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", server)
	}

	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: buildinfo.UserAgent("tokgate-cli"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a POST request with a JSON body. A nil body sends none.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, nil)
}

// Do sends a request with the client's credentials plus header.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.adminToken != "" {
		req.Header.Set(httpserver.HeaderAdminToken, c.adminToken)
	}
	if c.internalToken != "" {
		req.Header.Set(httpserver.HeaderInternalToken, c.internalToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// ParseResponse decodes a 2xx body into target and closes it. Other statuses
// return an *APIError built from the error envelope, falling back to the
// X-Error-Code header when the body is not an envelope.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxBodyBytes)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Code:      resp.Header.Get(httpstatus.HeaderErrorCode),
			RequestID: resp.Header.Get(httpserver.HeaderRequestID),
		}
		var env httpstatus.Envelope
		if err := json.NewDecoder(body).Decode(&env); err == nil {
			if env.Code != "" {
				apiErr.Code = string(env.Code)
			}
			if env.RequestID != "" {
				apiErr.RequestID = env.RequestID
			}
			apiErr.Message = env.Message
		}
		return apiErr
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// ErrorCode returns the server error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
