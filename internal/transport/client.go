// Package transport is the single HTTP boundary to the MemoMind backend.
// Every error leaving this package is an *errors.APIError.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/logger"
)

// Kind selects how the response body is treated.
type Kind int

const (
	// KindJSON requests a JSON response.
	KindJSON Kind = iota
	// KindBinary requests raw bytes; headers are preserved for classification.
	KindBinary
)

// DefaultTimeout applies when neither the call nor the client sets one.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the bearer token and handles its expiry.
type TokenSource interface {
	Token(ctx context.Context) string
	Expire(ctx context.Context, token string) bool
}

// File is a multipart file part.
type File struct {
	Field  string
	Name   string
	Reader io.Reader
}

// Form is a multipart request body.
type Form struct {
	Fields map[string]string
	File   *File
	// Progress is called as the encoded body is sent.
	Progress func(sent, total int64)
}

// Options configure a single call.
type Options struct {
	Params  url.Values
	Body    any
	Form    *Form
	Kind    Kind
	Timeout time.Duration
}

// Response is a successful (2xx) response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the response Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.NewUnexpectedFormat(string(r.Body))
	}
	return nil
}

// Client performs authenticated calls against a base URL.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
	log     logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client. tokens may be nil for unauthenticated use.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		timeout: DefaultTimeout,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a request to path (relative to the base URL) and returns the
// response for any 2xx status.
func (c *Client) Do(ctx context.Context, method, path string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, err
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(opts.Params) > 0 {
		target += "?" + opts.Params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid request: %v", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.Kind == KindBinary {
		req.Header.Set("Accept", "application/pdf, application/json")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	var token string
	if c.tokens != nil {
		token = c.tokens.Token(ctx)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("transport", "no response", map[string]any{
			"method":     method,
			"path":       path,
			"request_id": requestID,
			"error":      err.Error(),
		})
		return nil, errors.NewNetworkUnreachable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkUnreachable(err)
	}

	c.log.Debug("transport", "response", map[string]any{
		"method":       method,
		"path":         path,
		"request_id":   requestID,
		"status":       resp.StatusCode,
		"bytes":        len(data),
		"duration_ms":  time.Since(started).Milliseconds(),
		"content_type": resp.Header.Get("Content-Type"),
	})

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		c.tokens.Expire(ctx, token)
		return nil, errors.NewSessionExpired()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, payload := extractError(data)
		return nil, errors.NewServerError(resp.StatusCode, message, payload)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// JSON performs a JSON call and decodes the response into out (when non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, opts Options, out any) error {
	opts.Kind = KindJSON
	resp, err := c.Do(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func encodeBody(opts Options) (io.Reader, string, error) {
	switch {
	case opts.Form != nil:
		return encodeForm(opts.Form)
	case opts.Body != nil:
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, "", errors.NewInvalidRequest(fmt.Sprintf("cannot encode body: %v", err))
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

func encodeForm(form *Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if form.File != nil {
		part, err := w.CreateFormFile(form.File.Field, form.File.Name)
		if err != nil {
			return nil, "", errors.NewInternal(err)
		}
		if _, err := io.Copy(part, form.File.Reader); err != nil {
			return nil, "", errors.NewInvalidRequest(fmt.Sprintf("cannot read file: %v", err))
		}
	}
	for k, v := range form.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", errors.NewInternal(err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.NewInternal(err)
	}

	var body io.Reader = bytes.NewReader(buf.Bytes())
	if form.Progress != nil {
		body = &progressReader{r: body, total: int64(buf.Len()), fn: form.Progress}
	}
	return body, w.FormDataContentType(), nil
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

// extractError pulls the user-facing message and payload out of an error body.
func extractError(body []byte) (string, any) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", nil
	}
	var message string
	for _, key := range []string{"message", "error"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			message = s
			break
		}
	}
	return message, obj["data"]
}
