package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var knownTransports = []string{"websocket", "polling"}

// Validate validates config and returns error if problems found
func (c Config) Validate() error {
	if err := validateBaseURL("realtime.url", c.Realtime.URL); err != nil {
		return err
	}
	if c.API.URL != "" {
		if err := validateBaseURL("api.url", c.API.URL); err != nil {
			return err
		}
	}
	if c.Realtime.Path != "" && !strings.HasPrefix(c.Realtime.Path, "/") {
		return fmt.Errorf("realtime.path must start with /: %q", c.Realtime.Path)
	}
	if len(c.Realtime.Transports) == 0 {
		return errors.New("realtime.transports must contain at least one transport")
	}
	for _, t := range c.Realtime.Transports {
		if !slices.Contains(knownTransports, t) {
			return fmt.Errorf("unknown transport %q, supported: %s", t, strings.Join(knownTransports, ", "))
		}
	}
	if c.Realtime.ConnectTimeout <= 0 {
		return errors.New("realtime.connect_timeout must be positive")
	}
	if c.Realtime.ReconnectionAttempts < 0 {
		return errors.New("realtime.reconnection_attempts can't be negative")
	}
	if c.Realtime.ReconnectionDelay < 0 || c.Realtime.ReconnectionDelayMax < 0 {
		return errors.New("realtime reconnection delays can't be negative")
	}
	if c.Realtime.ReconnectionDelayMax > 0 && c.Realtime.ReconnectionDelayMax < c.Realtime.ReconnectionDelay {
		return errors.New("realtime.reconnection_delay_max must not be less than realtime.reconnection_delay")
	}
	if c.Chat.TypingRateLimit < 0 {
		return errors.New("chat.typing_rate_limit can't be negative")
	}
	if c.Bridge.ToastDuration <= 0 {
		return errors.New("bridge.toast_duration must be positive")
	}
	return nil
}

func validateBaseURL(key string, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must have http:// or https:// scheme, got: %s", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must contain host, got: %s", key, raw)
	}
	return nil
}
