package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/constants"
)

// defaultProxyPort is used when proxy_port is unset.
const defaultProxyPort = 8080

// newBaseTransport returns the transport shared by M2M calls and file fetches.
func newBaseTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// ConfigureHTTPClient returns an HTTP client honouring the proxy settings in cfg.
// The client has no overall timeout; callers bound requests through their context.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := newBaseTransport()
	client := &nethttp.Client{Transport: transport}

	mode := strings.ToLower(cfg.ProxyMode)
	switch mode {
	case config.ProxyModeNone, "":
		transport.Proxy = nil
		return client, nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case config.ProxyModeNTLM, config.ProxyModeBasic:
		// An incomplete saved config falls back to a direct connection
		if cfg.ProxyHost == "" {
			log.Warn().Str("proxy_mode", mode).Msg("proxy host is missing, falling back to direct connection")
			transport.Proxy = nil
			return client, nil
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy)

		if cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			log.Warn().Str("proxy_user", cfg.ProxyUser).Msg("proxy password missing, proxy auth disabled")
		}
		if mode == config.ProxyModeNTLM {
			client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	if cfg.ProxyWarmup {
		if err := warmupProxy(client, cfg.ServiceURL); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}

	return client, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = defaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.ProxyHost, fmt.Sprint(port)),
	}

	// Empty password in the URL makes some proxies reject the request outright
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}

	return proxyURL
}

// warmupProxy opens a connection through the proxy to the M2M host so that
// NTLM negotiation and proxy auth failures surface before a batch starts.
func warmupProxy(client *nethttp.Client, serviceURL string) error {
	if serviceURL == "" {
		serviceURL = constants.DefaultServiceURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, serviceURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusProxyAuthRequired {
		return fmt.Errorf("proxy rejected credentials: %s", resp.Status)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}

	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// With an empty list it behaves like nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the proxy needs a password that has not been provided.
// The CLI uses it to decide whether to prompt.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.ProxyMode)
	if mode != config.ProxyModeBasic && mode != config.ProxyModeNTLM {
		return false
	}
	return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
}

// ProxyActive reports whether requests built from cfg will go through a proxy.
func ProxyActive(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		pc := httpproxy.FromEnvironment()
		return pc.HTTPProxy != "" || pc.HTTPSProxy != ""
	default:
		return cfg.ProxyHost != ""
	}
}
