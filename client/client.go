package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/mmrunner/api"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/resilience"
	"github.com/kbukum/mmrunner/version"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client. Its Timeout must be
// zero for the event stream to stay open.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry policy for requests and stream connects.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client is a control API client. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
	retry resilience.RetryConfig
	log   *logger.Logger
}

// New creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: url %q must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:  u,
		http:  &http.Client{Transport: http.DefaultTransport},
		retry: resilience.DefaultRetryConfig(),
		log:   logger.Get("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			c.log.Debug("retrying", logger.Fields("attempt", attempt, logger.FieldError, err.Error(), "backoff", backoff.String()))
		}
	}
	return c, nil
}

// Snapshot returns the server's display state.
func (c *Client) Snapshot(ctx context.Context) (display.Snapshot, error) {
	var snap display.Snapshot
	err := c.do(ctx, http.MethodGet, api.BasePath, nil, &snap)
	return snap, err
}

// Run starts a run of release ("" or "latest" for the newest) and returns
// its ID. A run in progress is an INVALID_STATE AppError.
func (c *Client) Run(ctx context.Context, release string) (string, error) {
	var resp api.RunResponse
	err := c.do(ctx, http.MethodPost, api.BasePath+"/run", display.RunRequest{Release: release}, &resp)
	return resp.RunID, err
}

// Cancel asks the server to cancel the active run.
func (c *Client) Cancel(ctx context.Context) (api.CancelResponse, error) {
	var resp api.CancelResponse
	err := c.do(ctx, http.MethodPost, api.BasePath+"/cancel", nil, &resp)
	return resp, err
}

// Events connects to the event stream. The first messages are the
// connected and snapshot frames.
func (c *Client) Events(ctx context.Context) (*Stream, error) {
	return resilience.Retry(ctx, c.retry, func() (*Stream, error) {
		req, err := c.newRequest(ctx, http.MethodGet, api.BasePath+"/events", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return newStream(resp.Body), nil
	})
}

// do sends one JSON request with retries and decodes the response into
// out. POST requests are only retried when no response arrived.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	cfg := c.retry
	if method != http.MethodGet {
		retryIf := cfg.RetryIf
		cfg.RetryIf = func(err error) bool {
			return !errors.IsAppError(err) && (retryIf == nil || retryIf(err))
		}
	}

	return resilience.RetryFunc(ctx, cfg, func() error {
		var payload io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("client: encode request: %w", err)
			}
			payload = bytes.NewReader(data)
		}
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path += path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// decodeError turns an error response into an AppError. Bodies that are
// not an ErrorResponse keep their status code.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errors.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Code != "" {
		return &errors.AppError{
			Code:       body.Error.Code,
			Message:    body.Error.Message,
			Retryable:  body.Error.Retryable,
			HTTPStatus: resp.StatusCode,
			Details:    body.Error.Details,
		}
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	appErr := errors.Internal(fmt.Errorf("%s", msg))
	if resp.StatusCode >= 500 {
		appErr = errors.ServiceUnavailable("runner API")
	}
	appErr.HTTPStatus = resp.StatusCode
	appErr.Message = msg
	return appErr
}
