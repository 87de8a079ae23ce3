// Package transport builds the outbound HTTP transports used for commerce API calls.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint names accepted in Options.
const (
	FingerprintGo     = "go"
	FingerprintChrome = "chrome"
)

// Options configures New.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration

	// Fingerprint selects the TLS client hello: "go" (default) or "chrome".
	Fingerprint string

	// PingInterval enables HTTP/2 health-check pings on idle connections.
	// Zero disables them.
	PingInterval time.Duration
}

// New returns a RoundTripper for the requested fingerprint.
func New(opts Options) (http.RoundTripper, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	switch opts.Fingerprint {
	case "", FingerprintGo:
		return newStandardTransport(opts)
	case FingerprintChrome:
		return newChromeTransport(opts), nil
	default:
		return nil, fmt.Errorf("unknown TLS fingerprint %q", opts.Fingerprint)
	}
}

// =============================================================================
// STANDARD TRANSPORT
// =============================================================================

// newStandardTransport is net/http's transport with HTTP/2 configured
// explicitly so idle connections can be health-checked.
func newStandardTransport(opts Options) (http.RoundTripper, error) {
	dialer := &net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}

	t1 := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: opts.Timeout,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	if opts.PingInterval > 0 {
		t2.ReadIdleTimeout = opts.PingInterval
		t2.PingTimeout = opts.PingInterval / 2
	}
	return t1, nil
}

// =============================================================================
// CHROME FINGERPRINT TRANSPORT
// =============================================================================
//
// Some CDNs in front of merchant APIs throttle Go's distinctive TLS client
// hello. This transport presents Chrome's hello through uTLS and lets ALPN
// pick the protocol: h2 connections go through http2.Transport, anything
// else through an HTTP/1.1 transport.
// =============================================================================

// errNotH2 means the server did not negotiate h2. The request was never sent.
var errNotH2 = errors.New("server did not negotiate h2")

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func newChromeTransport(opts Options) http.RoundTripper {
	dialer := &net.Dialer{Timeout: opts.Timeout}

	h2 := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := dialChromeTLS(ctx, dialer, network, addr)
			if err != nil {
				return nil, err
			}
			if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
				conn.Close()
				return nil, errNotH2
			}
			return conn, nil
		},
	}
	if opts.PingInterval > 0 {
		h2.ReadIdleTimeout = opts.PingInterval
		h2.PingTimeout = opts.PingInterval / 2
	}

	h1 := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
		IdleConnTimeout:   90 * time.Second,
	}

	return &chromeTransport{h2: h2, h1: h1}
}

// RoundTrip tries HTTP/2 and falls back to HTTP/1.1 only when the server
// refused h2 during the handshake, so a request body is never sent twice.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil || !errors.Is(err, errNotH2) {
		return resp, err
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
