package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var (
	chromeH1Spec tls.ClientHelloSpec
	chromeSpecOK bool
)

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
	chromeSpecOK = true
}

// NewTransport returns the HTTP transport shared by the fetcher, the policy
// gate and the fallbacks. With impersonate set, TLS handshakes present a
// Chrome fingerprint for sites that block Go's default ClientHello.
func NewTransport(impersonate bool) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if !impersonate || !chromeSpecOK {
		t.ForceAttemptHTTP2 = true
		return t
	}

	t.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: apply tls spec: %w", err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return t
}
