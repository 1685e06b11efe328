package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/rs/zerolog/log"
)

type dialFunc func(ctx context.Context, opts Options) (conn, error)

var dialers = map[string]dialFunc{
	NameWebsocket: dialWebsocket,
	NamePolling:   dialPolling,
}

// Client owns one logical realtime connection. It dials in the background,
// reconnects after unexpected disconnects and reports lifecycle through Events.
type Client struct {
	opts   Options
	events Events

	mu     sync.RWMutex
	conn   conn
	opened bool
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Client. Nothing happens on the network until Open.
func New(opts Options, events Events) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:   opts.withDefaults(),
		events: events,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Open starts connecting. It returns immediately, the outcome is reported
// with OnConnect or OnConnectError. Calling Open more than once has no effect.
func (c *Client) Open() {
	c.mu.Lock()
	if c.opened || c.closed {
		c.mu.Unlock()
		return
	}
	c.opened = true
	c.mu.Unlock()
	go c.run()
}

// Close stops the client and any reconnection. Safe to call many times and
// from inside event callbacks.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	opened := c.opened
	cn := c.conn
	c.mu.Unlock()

	c.cancel()
	if cn != nil {
		_ = cn.Close()
	}
	if !opened {
		close(c.done)
	}
}

// Done is closed when the client stopped for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Connected reports whether a session is established right now.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Name of the transport in use, empty when not connected.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.Name()
}

// ID is the session id assigned by the server.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.SID()
}

// Emit sends an event to the server.
func (c *Client) Emit(event string, data any) error {
	c.mu.RLock()
	cn := c.conn
	c.mu.RUnlock()
	if cn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	return cn.Write(frame)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) run() {
	defer close(c.done)
	defer func() {
		if !c.isClosed() && c.events.OnClosed != nil {
			c.events.OnClosed()
		}
	}()
	attempt := 0
	for {
		if attempt > 0 {
			if attempt > c.opts.ReconnectionAttempts {
				log.Warn().Int("attempts", c.opts.ReconnectionAttempts).Msg("realtime reconnection gave up")
				return
			}
			delay := nextBackoffDuration(c.opts.ReconnectionDelay, c.opts.ReconnectionDelayMax, attempt-1)
			log.Debug().Int("attempt", attempt).Str("delay", delay.String()).Msg("realtime reconnecting")
			if !c.sleep(delay) {
				return
			}
		}

		cn, err := c.dial()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.opts.Metrics.IncConnectError()
			log.Warn().Err(err).Msg("realtime connect error")
			if c.events.OnConnectError != nil {
				c.events.OnConnectError(err)
			}
			var connectErr *ConnectError
			if errors.As(err, &connectErr) || !c.opts.Reconnection {
				return
			}
			attempt++
			continue
		}

		if !c.setConn(cn) {
			_ = cn.Close()
			return
		}
		attempt = 0
		c.opts.Metrics.IncConnect(cn.Name())
		log.Debug().Str("transport", cn.Name()).Str("sid", cn.SID()).Msg("realtime connected")
		if c.events.OnConnect != nil {
			c.events.OnConnect()
		}

		reason := disconnectReason(cn.ReadLoop(c.handleFrame))
		c.clearConn(cn)
		_ = cn.Close()
		c.opts.Metrics.IncDisconnect(reason)
		log.Debug().Str("transport", cn.Name()).Str("reason", reason).Msg("realtime disconnected")
		if c.events.OnDisconnect != nil {
			c.events.OnDisconnect(reason)
		}

		switch reason {
		case ReasonClientDisconnect, ReasonServerDisconnect:
			return
		}
		if !c.opts.Reconnection || c.isClosed() {
			return
		}
		attempt = 1
	}
}

func (c *Client) dial() (conn, error) {
	var lastErr error
	for _, name := range c.opts.Transports {
		dial, ok := dialers[name]
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
		cn, err := dial(ctx, c.opts)
		cancel()
		if err == nil {
			return cn, nil
		}
		var connectErr *ConnectError
		if errors.As(err, &connectErr) {
			return nil, err
		}
		log.Debug().Err(err).Str("transport", name).Msg("realtime transport unavailable")
		lastErr = fmt.Errorf("%s: %w", name, err)
		if c.ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ErrNoTransport
	}
	return nil, lastErr
}

func (c *Client) setConn(cn conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = cn
	return true
}

func (c *Client) clearConn(cn conn) {
	c.mu.Lock()
	if c.conn == cn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) handleFrame(f protocol.Frame) {
	switch f.Event {
	case protocol.EventConnect, protocol.EventConnectError:
		// Handshake frames are not expected mid-session.
	case protocol.EventError:
		if c.events.OnError != nil {
			c.events.OnError(errors.New(protocol.ErrorMessage(f.Data)))
		}
	default:
		if c.events.OnEvent != nil {
			c.events.OnEvent(f.Event, f.Data)
		}
	}
}

func disconnectReason(err error) string {
	switch {
	case errors.Is(err, ErrClosed):
		return ReasonClientDisconnect
	case errors.Is(err, errServerDisconnect):
		return ReasonServerDisconnect
	case errors.Is(err, errPingTimeout):
		return ReasonPingTimeout
	case errors.Is(err, errTransportClose):
		return ReasonTransportClose
	default:
		return ReasonTransportError
	}
}
