package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/constants"
)

// CreateOptimizedClient creates the client used for product file fetches.
//
// It starts from ConfigureHTTPClient (proxy support) and tunes the transport
// for a handful of long-lived streamed downloads from the same host:
//   - connection reuse across retries and polling rounds
//   - compression disabled (GeoTIFF and tar payloads do not shrink)
//   - HTTP/2 when talking to the download host directly
//
// DISABLE_HTTP2=true forces HTTP/1.1. HTTP/2 is also turned off when a proxy is
// active unless FORCE_HTTP2=true, since proxies tend to drop long HTTP/2 streams.
//
// A nil cfg yields a direct (no proxy) client.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	if cfg != nil {
		c, err := ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		baseClient = c
	} else {
		baseClient = &nethttp.Client{Transport: newBaseTransport()}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; use it as-is
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConnsPerHost = constants.MaxMaxConcurrent * 2
	tr.ResponseHeaderTimeout = constants.HTTPResponseHeaderTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	disableHTTP2 := os.Getenv("DISABLE_HTTP2") == "true" ||
		(ProxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true")
	if disableHTTP2 {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0 // each fetch bounds itself through its context
	return baseClient, nil
}
