package transport

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/colivhub/colivrt/internal/build"
	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/metrics"
)

const (
	NameWebsocket = "websocket"
	NamePolling   = "polling"
)

const defaultPollTimeout = 60 * time.Second

// Options of a realtime Client.
type Options struct {
	// URL is the server base URL (http or https).
	URL string
	// Path is the endpoint prefix. Websocket lives under Path+"/websocket",
	// long-polling under Path+"/poll".
	Path string
	// Token is sent in the handshake auth field.
	Token string
	// Transports in preference order.
	Transports []string

	ConnectTimeout time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	// PollTimeout bounds a single long-polling GET, a poll running longer is
	// treated like a missed ping.
	PollTimeout time.Duration

	Reconnection         bool
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration

	// Header is added to websocket handshake and polling requests.
	Header     http.Header
	HTTPClient *http.Client
	Metrics    *metrics.Registry
}

// OptionsFromConfig builds Options from the realtime config section.
func OptionsFromConfig(cfg configtypes.Realtime, token string) Options {
	header := http.Header{}
	header.Set("User-Agent", build.UserAgent())
	return Options{
		URL:                  cfg.URL,
		Path:                 cfg.Path,
		Token:                token,
		Transports:           cfg.Transports,
		ConnectTimeout:       cfg.ConnectTimeout.ToDuration(),
		PingInterval:         cfg.PingInterval.ToDuration(),
		WriteTimeout:         cfg.WriteTimeout.ToDuration(),
		PollTimeout:          cfg.PollTimeout.ToDuration(),
		Reconnection:         cfg.Reconnection,
		ReconnectionAttempts: cfg.ReconnectionAttempts,
		ReconnectionDelay:    cfg.ReconnectionDelay.ToDuration(),
		ReconnectionDelayMax: cfg.ReconnectionDelayMax.ToDuration(),
		Header:               header,
	}
}

func (o Options) withDefaults() Options {
	if len(o.Transports) == 0 {
		o.Transports = []string{NameWebsocket, NamePolling}
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaultPollTimeout
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = time.Second
	}
	if o.ReconnectionDelayMax < o.ReconnectionDelay {
		o.ReconnectionDelayMax = o.ReconnectionDelay
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Header == nil {
		o.Header = http.Header{}
	}
	return o
}

func websocketURL(base string, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = joinPath(u.Path, path, "/websocket")
	return u.String(), nil
}

func pollingURL(base string, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = joinPath(u.Path, path, "/poll")
	return u.String(), nil
}

func joinPath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(p)
	}
	return b.String()
}
