// Package transport implements the thin HTTPS/HTTP POST and GET client
// every RPC call and audio fetch goes through: one bounded retry on
// timeout, optional proxy/control-proxy override, a cooperative
// cancellation flag, and a coarse result code instead of a raw *http.Response.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kaelwave/wavetuner/internal/errs"
)

// Result is the coarse outcome of a Do call, used by callers that only
// need to branch on category rather than inspect the wrapped error.
type Result int

const (
	Ok Result = iota
	Timeout
	ConnectRefused
	Forbidden
	NotFound
	StatusUnknown
	TLSHandshake
	Cancelled
	NetworkErr
)

// Settings configures a Client for its whole lifetime.
type Settings struct {
	Timeout      time.Duration
	MaxRetry     int // bounded retries on Timeout only; 0 means "use default of 1"
	CABundlePath string
	Proxy        string // generic HTTP_PROXY-style override
	ControlProxy string // overrides Proxy when both are set, for the control-plane RPC only
}

// Client is a small wrapper over *http.Client that buffers the whole
// response body and classifies failures into a Result.
type Client struct {
	settings Settings
	http     *http.Client
	control  *http.Client // built with ControlProxy when set
}

// New builds a Client from settings. TLS verification is never disabled:
// when a CA bundle path is configured it is loaded and trusted in
// addition to the system pool; otherwise the system trust store is used.
func New(settings Settings) (*Client, error) {
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.MaxRetry <= 0 {
		settings.MaxRetry = 1
	}

	tlsConfig, err := buildTLSConfig(settings.CABundlePath)
	if err != nil {
		return nil, err
	}

	c := &Client{settings: settings}
	c.http = &http.Client{
		Timeout:   settings.Timeout,
		Transport: buildTransport(tlsConfig, resolveProxy(settings.Proxy)),
	}
	controlProxy := settings.ControlProxy
	if controlProxy == "" {
		controlProxy = settings.Proxy
	}
	c.control = &http.Client{
		Timeout:   settings.Timeout,
		Transport: buildTransport(tlsConfig, resolveProxy(controlProxy)),
	}
	return c, nil
}

func buildTLSConfig(caBundlePath string) (*tls.Config, error) {
	if caBundlePath == "" {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	pem, err := os.ReadFile(caBundlePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindLocal, "reading CA bundle", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errs.New(errs.KindLocal, "CA bundle contains no usable certificates")
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: pool}, nil
}

func resolveProxy(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		// Fall back to HTTP_PROXY per spec.md §6 environment rules.
		return http.ProxyFromEnvironment
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(u)
}

func buildTransport(tlsConfig *tls.Config, proxy func(*http.Request) (*url.URL, error)) *http.Transport {
	return &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
}

// Request describes one HTTP call.
type Request struct {
	Method       string
	URL          string
	Body         []byte
	Headers      map[string]string
	UseControl   bool // route through the control-proxy client instead of the generic one
	Interrupted  *atomic.Int32
}

// Response is the buffered result of a successful-enough round trip
// (Result == Ok); Body is empty for any other Result.
type Response struct {
	Result     Result
	StatusCode int
	Body       []byte
}

// Do executes req, retrying once (or Settings.MaxRetry times) on timeout,
// and classifies the outcome into a Result. It never returns a
// *http.Response; callers only see the buffered body and the coarse code.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	client := c.http
	if req.UseControl {
		client = c.control
	}

	id := uuid.New()
	var lastErr error
	attempts := c.settings.MaxRetry + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if req.Interrupted != nil && req.Interrupted.Load() != 0 {
			return nil, errs.Wrap(errs.KindTransport, "cancelled", errs.ErrCancelled)
		}

		resp, err := c.attempt(ctx, client, req, id)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errTimeoutRetryable) {
			return nil, err
		}
		lastErr = errs.Wrap(errs.KindTransport, "request timed out", errs.ErrTimeout)
		slog.Debug("transport: retrying after timeout", "channel", "net", "request_id", id, "attempt", attempt+1)
	}
	return nil, lastErr
}

// errTimeoutRetryable is a private sentinel attempt returns to tell Do to
// retry; it never escapes to callers (Do returns a wrapped public
// errs.ErrTimeout instead).
var errTimeoutRetryable = errors.New("retryable timeout")

func (c *Client) attempt(ctx context.Context, client *http.Client, req Request, id uuid.UUID) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, "building request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	slog.Debug("transport: request", "channel", "net", "request_id", id, "method", req.Method, "url", req.URL)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err, req.Interrupted)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, "reading response body", err)
	}

	result, rerr := classifyStatus(resp.StatusCode)
	if rerr != nil {
		return &Response{Result: result, StatusCode: resp.StatusCode, Body: body}, rerr
	}
	return &Response{Result: Ok, StatusCode: resp.StatusCode, Body: body}, nil
}

func classifyStatus(code int) (Result, error) {
	switch {
	case code >= 200 && code < 300:
		return Ok, nil
	case code == http.StatusForbidden:
		return Forbidden, errs.Wrap(errs.KindTransport, "forbidden", errs.ErrForbidden)
	case code == http.StatusNotFound:
		return NotFound, errs.Wrap(errs.KindTransport, "not found", errs.ErrNotFound)
	default:
		return StatusUnknown, errs.Wrap(errs.KindTransport, "unexpected status code", errs.ErrStatusUnknown)
	}
}

func classifyError(err error, interrupted *atomic.Int32) error {
	if interrupted != nil && interrupted.Load() != 0 {
		return errs.Wrap(errs.KindTransport, "cancelled", errs.ErrCancelled)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errTimeoutRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return errs.Wrap(errs.KindTransport, "connection refused", errs.ErrConnectRefused)
		}
	}
	if isTLSError(err) {
		return errs.Wrap(errs.KindTransport, "TLS handshake failed", errs.ErrTLSHandshake)
	}
	return errs.Wrap(errs.KindTransport, "network error", errs.ErrNetwork)
}

func isTLSError(err error) bool {
	var certErr x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	return errors.As(err, &certErr) || errors.As(err, &unknownAuth)
}
