// Package rehydration talks to the batch rehydration endpoint: an
// authenticated JSON client plus the requester that splits id lists into
// API-sized batches.
package rehydration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/rehydrator/internal/model"
)

// ErrTransport is wrapped by every failure to obtain a usable response:
// network errors, non-2xx statuses and bodies that are not a JSON array.
var ErrTransport = errors.New("rehydration transport failure")

const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccountName string
	Publisher   string
	UserName    string
	Password    string
	Timeout     time.Duration
	// Attempts is the total number of tries per batch; 1 disables retries.
	Attempts  int
	BaseDelay time.Duration
	// RequestsPerMinute paces outgoing requests; 0 means unlimited.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client posts id batches to the rehydration endpoint using HTTP basic auth.
type Client struct {
	endpoint  string
	userName  string
	password  string
	http      *http.Client
	limiter   *rate.Limiter
	attempts  int
	baseDelay time.Duration
}

// NewClient constructs a Client for the account's activities endpoint.
func NewClient(opts Options) (*Client, error) {
	if opts.AccountName == "" {
		return nil, errors.New("account name is required")
	}
	endpoint, err := Endpoint(opts.BaseURL, opts.AccountName, opts.Publisher)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}
	c := &Client{
		endpoint:  endpoint,
		userName:  opts.UserName,
		password:  opts.Password,
		http:      httpClient,
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
	}
	if c.attempts <= 0 {
		c.attempts = 1
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 500 * time.Millisecond
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Endpoint returns <base>/accounts/<account>/publishers/<publisher>/rehydration/activities.json.
func Endpoint(baseURL, account, publisher string) (string, error) {
	if publisher == "" {
		publisher = "twitter"
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	return u.JoinPath("accounts", account, "publishers", publisher, "rehydration", "activities.json").String(), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

type requestBody struct {
	IDs []string `json:"ids"`
}

// Rehydrate requests the activities for ids and returns the records in the
// order the API returned them.
func (c *Client) Rehydrate(ctx context.Context, ids []string) ([]model.ActivityRecord, error) {
	body, err := json.Marshal(requestBody{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var records []model.ActivityRecord
	err = c.retry(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		records, err = c.post(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]model.ActivityRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.userName, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err, retriable: isRetriableNetErr(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &transportError{
			err:       fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			retriable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var records []model.ActivityRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &transportError{err: fmt.Errorf("decode response: %w", err)}
	}
	if records == nil {
		return nil, &transportError{err: errors.New("decode response: body is not a JSON array")}
	}
	return records, nil
}

// retry runs fn until it succeeds, returns a non-retriable error, or the
// attempt budget is spent. The delay doubles after each failure, capped at 30s.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	delay := c.baseDelay
	for i := 0; i < c.attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		var te *transportError
		if !errors.As(err, &te) || !te.retriable || i == c.attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return err
}

type transportError struct {
	err       error
	retriable bool
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() []error { return []error{ErrTransport, e.err} }

func isRetriableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}
