package backend

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRedirects = 10

// NewUnaryTransport creates an http.Transport for card discovery and
// message/send. The response header wait is bounded by the call timeout.
func NewUnaryTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   10 * time.Second,
	}
}

// NewStreamTransport creates an http.Transport for SSE replies.
// No response header timeout or idle timeout; the client timeout and the
// request context bound the stream instead.
func NewStreamTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       0,
		ResponseHeaderTimeout: 0,
		TLSHandshakeTimeout:   10 * time.Second,
	}
}

// NewHTTPClient wraps rt in OpenTelemetry instrumentation and applies the
// overall timeout. When admit is non-nil every redirect target must pass it.
func NewHTTPClient(rt http.RoundTripper, timeout time.Duration, admit Admitter) *http.Client {
	c := &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   timeout,
	}
	if admit != nil {
		c.CheckRedirect = checkRedirect(admit)
	}
	return c
}

func checkRedirect(admit Admitter) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.New("stopped after 10 redirects")
		}
		if err := admit.Check(req.Context(), req.URL.String()); err != nil {
			return fmt.Errorf("redirect rejected: %w", err)
		}
		return nil
	}
}

// limitBody makes reading a response body past limit bytes fail.
func limitBody(rt http.RoundTripper, limit int) http.RoundTripper {
	return &limitedBodyTransport{next: rt, limit: int64(limit)}
}

type limitedBodyTransport struct {
	next  http.RoundTripper
	limit int64
}

func (t *limitedBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &limitedBody{ReadCloser: resp.Body, limit: t.limit, remaining: t.limit}
	return resp, nil
}

type limitedBody struct {
	io.ReadCloser
	limit     int64
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.remaining <= 0 {
		var one [1]byte
		n, err := b.ReadCloser.Read(one[:])
		if n > 0 {
			return 0, fmt.Errorf("response exceeds %d bytes", b.limit)
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}
