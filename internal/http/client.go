// Package http is the REST transport used by bindings: a retryable HTTP
// client that speaks JSON, authenticates with a bearer token and turns
// non-2xx responses into *crm.RemoteAPIError.
package http

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

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Static errors for err113 compliance.
var (
	ErrBaseURLNotSet = errors.New("base URL not set")
)

// RequestIDHeader carries a unique id for every request.
const RequestIDHeader = "X-Request-Id"

// TokenManager supplies the bearer token for each request.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenManager holding a token set from outside, such as
// the session token a binding receives on checkout.
type StaticToken struct {
	mutex sync.RWMutex
	token string
}

// NewStaticToken returns a StaticToken holding token.
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

func (s *StaticToken) GetToken(ctx context.Context) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.token, nil
}

func (s *StaticToken) SetToken(token string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.token = token
}

// Request is one call.
type Request struct {
	Method string
	// Path is appended to the base URL. A path that already starts with
	// the base URL's path (a pagination cursor, for instance) or an
	// absolute URL is used as is.
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is the HTTP transport.
type Client struct {
	mutex        sync.RWMutex
	baseURL      string
	tokenManager TokenManager

	httpClient *retryablehttp.Client
	logger     crm.Logger
	debug      bool
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger crm.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug logs every request and response at debug level.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithRetryConfig enables transport retries on connection errors, 5xx and
// 429 responses. Retries are off unless this option is given.
func WithRetryConfig(maxRetries int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = maxRetries
		c.httpClient.RetryWaitMin = minWait
		c.httpClient.RetryWaitMax = maxWait
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.HTTPClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient.HTTPClient = httpClient
		}
	}
}

// NewClient creates a client for baseURL. tokenManager may be nil for
// unauthenticated endpoints.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.ErrorHandler = keepLastResponse

	client := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenManager: tokenManager,
		httpClient:   retryClient,
		logger:       logging.Nop{},
		userAgent:    constants.DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	retryClient.Logger = &leveledLogger{logger: client.logger}

	return client
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.baseURL
}

// SetBaseURL repoints the client.
func (c *Client) SetBaseURL(baseURL string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.baseURL = strings.TrimRight(baseURL, "/")
}

// Do sends req. A non-2xx status returns both the response and a
// *crm.RemoteAPIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader

	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.tokenManager != nil {
		token, err := c.tokenManager.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting token: %w", err)
		}

		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":     req.Method,
			"url":        fullURL,
			"request_id": httpReq.Header.Get(RequestIDHeader),
		})
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, fullURL, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   httpResp.StatusCode,
			"duration": time.Since(start).String(),
			"size":     len(respBody),
		})
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return resp, crm.ParseRemoteError(httpResp.StatusCode, fullURL, respBody)
	}

	return resp, nil
}

// Get sends a GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put sends a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch sends a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete sends a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// PostForm sends an urlencoded form. Used by the login endpoint.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	fullURL, err := c.buildURL(path, nil)
	if err != nil {
		return nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": http.MethodPost,
			"url":    fullURL,
		})
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", fullURL, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Headers: httpResp.Header, Body: respBody}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status": httpResp.StatusCode,
			"size":   len(respBody),
		})
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return resp, crm.ParseRemoteError(httpResp.StatusCode, fullURL, respBody)
	}

	return resp, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		target, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("parsing URL %q: %w", path, err)
		}

		mergeQuery(target, query)

		return target.String(), nil
	}

	baseURL := c.BaseURL()
	if baseURL == "" {
		return "", ErrBaseURLNotSet
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}

	target := *base
	rawPath, rawQuery, _ := strings.Cut(path, "?")

	if !strings.HasPrefix(rawPath, "/") && rawPath != "" {
		rawPath = "/" + rawPath
	}

	if base.Path != "" && strings.HasPrefix(rawPath, base.Path+"/") {
		target.Path = rawPath
	} else {
		target.Path = base.Path + rawPath
	}

	target.RawQuery = rawQuery
	mergeQuery(&target, query)

	return target.String(), nil
}

func mergeQuery(target *url.URL, query url.Values) {
	if len(query) == 0 {
		return
	}

	merged := target.Query()

	for key, values := range query {
		for _, value := range values {
			merged.Add(key, value)
		}
	}

	target.RawQuery = merged.Encode()
}

// keepLastResponse hands the final response back to Do once retries are
// exhausted, so the caller can turn it into a RemoteAPIError.
func keepLastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}

	return nil, err
}

// leveledLogger forwards retryablehttp's warnings and errors. Its per
// attempt debug lines are dropped; Do logs its own.
type leveledLogger struct {
	logger crm.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, pairs(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, pairs(keysAndValues))
}

func (l *leveledLogger) Info(string, ...interface{})  {}
func (l *leveledLogger) Debug(string, ...interface{}) {}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return fields
}
