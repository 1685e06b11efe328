package restapi

import (
	"net/http"
	"time"
)

// Option is used for configuring Client.
type Option func(c *Client)

// WithHTTPClient sets custom http client. By default client with 10 sec timeout used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets timeout of the default http client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithTokenSource enables bearer auth.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}
