package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/telekom/account-client/pkg/account"
	"github.com/telekom/account-client/pkg/metrics"
	"github.com/telekom/account-client/pkg/version"
)

const defaultTimeout = 30 * time.Second

// Client is an account.TokenExchanger and account.CommandFetcher backed by
// HTTP.
type Client struct {
	http      *http.Client
	userAgent string
	log       *zap.SugaredLogger
	// limiter throttles profile and command requests when set.
	limiter *rate.Limiter
}

var (
	_ account.TokenExchanger = (*Client)(nil)
	_ account.CommandFetcher = (*Client)(nil)
)

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: version.UserAgent(),
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		c.http = client
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// WithRateLimit caps profile and command requests at perSecond with the
// given burst. Requests wait for a token or fail when ctx ends first.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		if perSecond <= 0 || burst < 1 {
			return fmt.Errorf("invalid rate limit: %v/s burst %d", perSecond, burst)
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		transport := &http.Transport{TLSClientConfig: tlsConfig}
		c.http = &http.Client{Transport: transport, Timeout: defaultTimeout}
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} //nolint:gosec // opt-in for test servers
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// oauthContext makes golang.org/x/oauth2 use the client's transport and user
// agent.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	hc := c.http
	if c.userAgent != "" {
		clone := *c.http
		clone.Transport = userAgentTransport{base: c.http.Transport, userAgent: c.userAgent}
		hc = &clone
	}
	return context.WithValue(ctx, oauth2.HTTPClient, hc)
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return base.RoundTrip(req)
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
// endpoint is the logical name used for metrics.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL, token string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s request throttled: %w", account.ErrTransport, endpoint, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", account.ErrConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observe(endpoint, started, 0)
		return fmt.Errorf("%w: %s request failed: %w", account.ErrTransport, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	observe(endpoint, started, resp.StatusCode)

	if resp.StatusCode >= 400 {
		return classify(decodeError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", account.ErrTransport, endpoint, err)
	}
	return nil
}

func observe(endpoint string, started time.Time, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	metrics.RemoteRequests.WithLabelValues(endpoint, label).Inc()
	metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

func decodeError(resp *http.Response) *HTTPError {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(body) > 0 {
		_ = json.Unmarshal(body, &apiErr)
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Error)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = resp.Status
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}

// classify maps an HTTP failure onto the account error kinds.
func classify(err *HTTPError) error {
	if err.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", account.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", account.ErrTransport, err)
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}
