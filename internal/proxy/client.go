package proxy

import (
	"bytes"
	"context"
	"net"
	"net/http"

	"gatewaycred/internal/constants"
)

const userAgent = "gatewaycred/1.0 (+cloud-code-assist)"

// newTransport mirrors the teacher's base connection-pool tuning for the
// upstream HTTP client: generous idle-connection limits, conservative
// per-attempt timeouts, environment-aware proxying.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   constants.DefaultDialTimeout,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.BaseMaxIdleConns,
		MaxIdleConnsPerHost:   constants.BaseMaxIdleConnsPerHost,
		IdleConnTimeout:       constants.BaseIdleConnTimeout,
	}
}

// Client wraps the upstream HTTP client shared by every call the engine
// dispatches. Timeout is left at zero: any deadline is carried by the
// caller's ctx, so a streaming call is not cut off by a fixed client-wide
// timeout.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Transport: newTransport()}}
}

// CloseIdleConnections releases pooled connections; part of the ordered
// teardown of the streaming resource group.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// postJSON issues a single POST attempt; the caller owns resp.Body on a nil
// error and must close it.
func (c *Client) postJSON(ctx context.Context, reqURL string, body []byte, bearerToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return c.http.Do(req)
}

