package relay

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

	"github.com/google/uuid"
	"github.com/pion/logging"
)

const (
	// DefaultRequestTimeout bounds a single relay request.
	DefaultRequestTimeout = 30 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// Config configures a Client.
type Config struct {
	// BaseURL is the relay root, e.g. "https://relay.example.com/".
	BaseURL string

	// HTTPClient performs the requests. If nil, a client without a cookie jar
	// is created.
	HTTPClient *http.Client

	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ClientID is sent as X-KeyExchange-Id. If empty, NewClientID is used.
	ClientID string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client talks to a relay on behalf of one peer.
// Methods are safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	timeout  time.Duration
	clientID string
	log      logging.LeveledLogger
}

// NewClient creates a relay client.
func NewClient(config Config) (*Client, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("relay: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("relay: unsupported base url scheme %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:     base,
		http:     config.HTTPClient,
		timeout:  config.RequestTimeout,
		clientID: config.ClientID,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout == 0 {
		c.timeout = DefaultRequestTimeout
	}
	if c.clientID == "" {
		c.clientID = NewClientID()
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("relay")
	}
	return c, nil
}

// NewClientID returns a random LengthClientID character client id made of
// hex encoded UUIDv4s.
func NewClientID() string {
	var b strings.Builder
	for b.Len() < LengthClientID {
		id := uuid.New()
		b.WriteString(strings.ReplaceAll(id.String(), "-", ""))
	}
	return b.String()[:LengthClientID]
}

// ClientID returns the X-KeyExchange-Id value sent with every request.
func (c *Client) ClientID() string { return c.clientID }

// BaseURL returns the relay root.
func (c *Client) BaseURL() string { return c.base.String() }

// Allocate asks the relay for a new channel and returns its id.
// Every failure wraps ErrChannel.
func (c *Client) Allocate(ctx context.Context) (string, error) {
	resp, body, err := c.do(ctx, http.MethodPost, PathNewChannel, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w: allocate: %v", ErrChannel, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: allocate: %s", ErrChannel, resp.Status)
	}

	var id string
	if err := json.Unmarshal(body, &id); err != nil {
		return "", fmt.Errorf("%w: allocate: malformed body: %v", ErrChannel, err)
	}
	if !ValidChannelID(id) {
		return "", fmt.Errorf("%w: allocate: %w %q", ErrChannel, ErrInvalidChannelID, id)
	}

	if c.log != nil {
		c.log.Debugf("allocated channel %s", id)
	}
	return id, nil
}

// Put replaces the channel document and returns its new ETag. A missing
// channel yields ErrNotFound.
func (c *Client) Put(ctx context.Context, channel string, doc []byte) (string, error) {
	if !ValidChannelID(channel) {
		return "", ErrInvalidChannelID
	}
	header := http.Header{"Content-Type": {"application/json"}}
	resp, _, err := c.do(ctx, http.MethodPut, channel, header, doc)
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: put %s", ErrNotFound, channel)
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("%w: put %s: %s", ErrChannel, channel, resp.Status)
	}

	etag := resp.Header.Get(HeaderETag)
	if c.log != nil {
		c.log.Tracef("put %s: %d bytes, etag %s", channel, len(doc), etag)
	}
	return etag, nil
}

// Get reads the channel document. If etag is non-empty it is sent as
// If-None-Match and an unchanged document yields ErrNotModified. A missing
// channel yields ErrNotFound.
func (c *Client) Get(ctx context.Context, channel, etag string) ([]byte, string, error) {
	if !ValidChannelID(channel) {
		return nil, "", ErrInvalidChannelID
	}
	var header http.Header
	if etag != "" {
		header = http.Header{HeaderIfNoneMatch: {etag}}
	}
	resp, body, err := c.do(ctx, http.MethodGet, channel, header, nil)
	if err != nil {
		return nil, "", err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, etag, ErrNotModified
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, "", fmt.Errorf("%w: get %s: %s", ErrChannel, channel, resp.Status)
	}

	newETag := resp.Header.Get(HeaderETag)
	if c.log != nil {
		c.log.Tracef("get %s: %d bytes, etag %s", channel, len(body), newETag)
	}
	return body, newETag, nil
}

// Clear deletes the channel. Clearing a missing channel succeeds.
func (c *Client) Clear(ctx context.Context, channel string) error {
	if !ValidChannelID(channel) {
		return ErrInvalidChannelID
	}
	resp, _, err := c.do(ctx, http.MethodDelete, channel, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: clear %s: %s", ErrChannel, channel, resp.Status)
	}
	if c.log != nil {
		c.log.Debugf("cleared channel %s", channel)
	}
	return nil
}

// Report tells the relay how an exchange ended. The relay clears the named
// channel, if any. Failures are logged and otherwise ignored.
func (c *Client) Report(ctx context.Context, channel, outcome string) {
	header := http.Header{}
	if outcome != "" {
		header.Set(HeaderReportLog, outcome)
	}
	if channel != "" {
		header.Set(HeaderReportCID, channel)
	}

	resp, _, err := c.do(ctx, http.MethodPost, PathReport, header, nil)
	switch {
	case err != nil:
		if c.log != nil {
			c.log.Warnf("report %q for channel %s failed: %v", outcome, channel, err)
		}
	case resp.StatusCode/100 != 2:
		if c.log != nil {
			c.log.Warnf("report %q for channel %s rejected: %s", outcome, channel, resp.Status)
		}
	default:
		if c.log != nil {
			c.log.Debugf("reported %q for channel %s", outcome, channel)
		}
	}
}

// do performs one request bounded by the request timeout. Transport failures
// wrap ErrNetwork. The returned body is fully read and closed.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	target := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set(HeaderClientID, c.clientID)
	req.Header.Del("Authorization")

	resp, err := c.http.Do(req)
	if err != nil {
		// Cancellation by the caller is not a network failure.
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s %s: reading body: %v", ErrNetwork, method, path, err)
	}
	return resp, data, nil
}
