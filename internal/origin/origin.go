// Package origin checks the Origin header of browser requests.
package origin

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Checker allows requests without Origin, same host requests and origins
// matching one of the configured glob patterns.
type Checker struct {
	allowedOrigins []glob.Glob
}

func NewChecker(allowedOrigins []string) (*Checker, error) {
	var globs []glob.Glob
	for _, pattern := range allowedOrigins {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("malformed origin pattern: %w", err)
		}
		globs = append(globs, g)
	}
	return &Checker{
		allowedOrigins: globs,
	}, nil
}

func (c *Checker) Check(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	lowerOrigin := strings.ToLower(origin)
	for _, pattern := range c.allowedOrigins {
		if pattern.Match(lowerOrigin) {
			return nil
		}
	}
	if err := checkSameHost(r, origin); err == nil {
		return nil
	}
	return fmt.Errorf("request Origin %s is not authorized", origin)
}

// Allowed adapts Check to websocket.Upgrader.CheckOrigin.
func (c *Checker) Allowed(r *http.Request) bool {
	return c.Check(r) == nil
}

func checkSameHost(r *http.Request, origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if u.Host != "" && strings.EqualFold(r.Host, u.Host) {
		return nil
	}
	return fmt.Errorf("request Origin %q is not authorized for Host %q", origin, r.Host)
}
