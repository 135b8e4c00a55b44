// Package remote calls the configured HTTP endpoint.
//
// Every request carries "Authorization: Bearer <token>" unless the token is
// empty. A 2xx response is
// decoded as JSON; anything else, including transport failures, is a
// REMOTE_CALL_FAILED fault carrying the status and an excerpt of the body.
// The client never retries.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/value"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second

	// maxExcerpt bounds the response body quoted in errors.
	maxExcerpt = 512
)

// DefaultHTTPClient returns an http.Client with connect and TLS handshake
// timeouts set. There is no overall timeout; the request context bounds a
// call.
func DefaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
	}
	return &http.Client{Transport: transport}
}

// Client posts JSON payloads to one endpoint.
// Safe for concurrent use.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for url authenticating with token.
func New(url, token string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		token:      token,
		httpClient: DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint.
func (c *Client) URL() string {
	return c.url
}

// StatusError is the cause of a REMOTE_CALL_FAILED fault for a non-2xx
// response.
type StatusError struct {
	StatusCode int
	Excerpt    string
}

func (e *StatusError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Excerpt)
}

// Request is a single outbound call.
type Request struct {
	Method  string
	Headers map[string]string

	// Path is appended to the client URL.
	Path string

	// Body is sent verbatim when it is a string, JSON-encoded otherwise.
	// A nil Body sends no body.
	Body any
}

// Post sends payload as the JSON body of a POST and returns the decoded
// response body. String payloads are JSON-encoded like any other value.
func (c *Client) Post(ctx context.Context, payload any) (any, error) {
	data, err := value.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "encode request body")
	}
	return c.Do(ctx, Request{Method: http.MethodPost, Body: string(data)})
}

// Do performs req against the endpoint. Content-Type defaults to
// application/json when a body is sent and no Content-Type header is
// given. An empty 2xx body decodes to nil.
func (c *Client) Do(ctx context.Context, req Request) (any, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	var (
		body        io.Reader
		contentType string
	)
	switch b := req.Body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
		contentType = "application/json"
	default:
		data, err := value.Marshal(b)
		if err != nil {
			return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "encode request body")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	url := c.url + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "create request")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "%s %s", method, url)
	}
	return decodeResponse(resp)
}

// decodeResponse decodes a 2xx JSON body or reports the failed status.
func decodeResponse(resp *http.Response) (any, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, &StatusError{
			StatusCode: resp.StatusCode,
			Excerpt:    excerpt(data),
		}, "remote endpoint rejected request")
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	v, err := value.Decode(data)
	if err != nil {
		return nil, fault.Wrap(fault.CodeRemoteCallFailed, err, "decode response body")
	}
	return v, nil
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= maxExcerpt {
		return s
	}
	return s[:maxExcerpt] + "..."
}
