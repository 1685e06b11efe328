package chat

import (
	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/metrics"
	"github.com/colivhub/colivrt/internal/transport"
)

// Socket is the transport handle exclusively owned by Service. Callers that
// get it from Connect must treat it as read-only.
type Socket interface {
	// Open starts connecting in the background.
	Open()
	// Close tears the transport down and stops reconnection.
	Close()
	Emit(event string, data any) error
	Connected() bool
	// Name of the transport in use, ex. websocket.
	Name() string
}

// Dialer creates a new, not yet opened, Socket authenticated with token.
type Dialer func(token string, events transport.Events) Socket

// TransportDialer returns a Dialer creating realtime transport clients.
func TransportDialer(cfg configtypes.Realtime, m *metrics.Registry) Dialer {
	return func(token string, events transport.Events) Socket {
		opts := transport.OptionsFromConfig(cfg, token)
		opts.Metrics = m
		return transport.New(opts, events)
	}
}
