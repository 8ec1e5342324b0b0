package http

import (
	"net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/scenefetch/scenefetch/internal/config"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")

	tests := []struct {
		name       string
		noProxy    string
		target     string
		wantBypass bool
	}{
		{"empty list proxies everything", "", "https://m2m.cr.usgs.gov/api/", false},
		{"wildcard domain", "*.usgs.gov", "https://m2m.cr.usgs.gov/api/", true},
		{"exact domain matches subdomains", "usgs.gov", "https://dds.cr.usgs.gov/file", true},
		{"cidr", "10.0.0.0/8", "http://10.1.2.3:8080/api", true},
		{"non-matching host", "*.internal.corp,10.0.0.0/8", "https://landsatlook.usgs.gov/", false},
		{"multiple patterns", "*.example.com, 192.168.0.0/16, internal.corp", "http://192.168.1.100/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyFunc := proxyFuncWithBypass(proxyURL, tt.noProxy)
			req, _ := http.NewRequest("GET", tt.target, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass for %s, got %v", tt.target, result)
			}
			if !tt.wantBypass {
				if result == nil {
					t.Fatalf("expected proxy for %s, got direct", tt.target)
				}
				if result.Host != "proxy.corp:8080" {
					t.Errorf("proxy host = %s, want proxy.corp:8080", result.Host)
				}
			}
		})
	}
}

func TestConfigureHTTPClientModes(t *testing.T) {
	t.Run("no proxy", func(t *testing.T) {
		cfg := config.DefaultConfig()
		client, err := ConfigureHTTPClient(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tr, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("transport = %T, want *http.Transport", client.Transport)
		}
		if tr.Proxy != nil {
			t.Error("expected no proxy function")
		}
	})

	t.Run("ntlm wraps transport", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.ProxyMode = config.ProxyModeNTLM
		cfg.ProxyHost = "proxy.corp"
		client, err := ConfigureHTTPClient(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
			t.Errorf("transport = %T, want ntlmssp.Negotiator", client.Transport)
		}
	})

	t.Run("basic without host falls back", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.ProxyMode = config.ProxyModeBasic
		client, err := ConfigureHTTPClient(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr := client.Transport.(*http.Transport); tr.Proxy != nil {
			t.Error("expected direct connection when proxy host is missing")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.ProxyMode = "socks5"
		if _, err := ConfigureHTTPClient(cfg); err == nil {
			t.Error("expected error for unsupported proxy mode")
		}
	})
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyUser = "alice"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("host = %s, want default port 8080", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	cfg.ProxyPassword = "pw"
	cfg.ProxyPort = 3128
	u = buildProxyURL(cfg)
	if u.Host != "proxy.corp:3128" || u.User == nil || u.User.Username() != "alice" {
		t.Errorf("proxy url = %s", u.Redacted())
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProxyMode = config.ProxyModeBasic
	cfg.ProxyUser = "alice"
	if !NeedsProxyPassword(cfg) {
		t.Error("basic proxy with user and no password should need a password")
	}
	cfg.ProxyPassword = "pw"
	if NeedsProxyPassword(cfg) {
		t.Error("password already provided")
	}
	cfg.ProxyMode = config.ProxyModeSystem
	cfg.ProxyPassword = ""
	if NeedsProxyPassword(cfg) {
		t.Error("system mode never prompts")
	}
}

func TestCreateOptimizedClientDisablesHTTP2BehindProxy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProxyMode = config.ProxyModeBasic
	cfg.ProxyHost = "proxy.corp"

	client, err := CreateOptimizedClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be disabled behind a proxy")
	}
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", client.Timeout)
	}
}
