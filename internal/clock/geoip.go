package clock

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"
)

const maxProviderBody = 8192

const providerTimeout = 5 * time.Second

// geoProvider describes one upstream IP-location lookup service.
type geoProvider struct {
	name   string
	url    func(ip string) string
	decode func([]byte) (string, bool)
}

var geoProviders = []geoProvider{
	{
		name: "ip-api.com",
		url:  func(ip string) string { return "http://ip-api.com/json/" + ip },
		decode: func(body []byte) (string, bool) {
			var out struct {
				Status  string `json:"status"`
				Country string `json:"country"`
				City    string `json:"city"`
			}
			if json.Unmarshal(body, &out) != nil || out.Status != "success" {
				return "", false
			}
			return joinLocation(out.Country, out.City), true
		},
	},
	{
		name: "ipwho.is",
		url:  func(ip string) string { return "https://ipwho.is/" + ip },
		decode: func(body []byte) (string, bool) {
			var out struct {
				Success bool   `json:"success"`
				Country string `json:"country"`
				City    string `json:"city"`
			}
			if json.Unmarshal(body, &out) != nil || !out.Success {
				return "", false
			}
			return joinLocation(out.Country, out.City), true
		},
	},
	{
		name: "pconline.com.cn",
		url:  func(ip string) string { return "https://whois.pconline.com.cn/ipJson.jsp?ip=" + ip + "&json=true" },
		decode: func(body []byte) (string, bool) {
			var out struct {
				Pro  string `json:"pro"`
				City string `json:"city"`
			}
			if json.Unmarshal(body, &out) != nil || (out.Pro == "" && out.City == "") {
				return "", false
			}
			return joinLocation(out.Pro, out.City), true
		},
	},
}

func joinLocation(region, city string) string {
	if region == "" {
		return city
	}
	if city == "" {
		return region
	}
	return region + " / " + city
}

// LocationResolver resolves a client IP to a human-readable location string,
// trying each configured provider in order and never failing the caller.
type LocationResolver struct {
	client *http.Client
}

func NewLocationResolver() *LocationResolver {
	return &LocationResolver{client: &http.Client{Timeout: providerTimeout}}
}

// Resolve returns "local" for loopback/RFC1918 addresses, otherwise queries
// providers in order until one succeeds, falling back to "unknown".
func (r *LocationResolver) Resolve(ctx context.Context, ip string) string {
	if isLocal(ip) {
		return "local"
	}
	for _, p := range geoProviders {
		loc, ok := r.tryProvider(ctx, p, ip)
		if ok {
			return loc
		}
	}
	return "unknown"
}

func (r *LocationResolver) tryProvider(ctx context.Context, p geoProvider, ip string) (string, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url(ip), nil)
	if err != nil {
		return "", false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return "", false
	}
	return p.decode(body)
}

func isLocal(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	if parsed.IsLoopback() {
		return true
	}
	return parsed.IsPrivate()
}
