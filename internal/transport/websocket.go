package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/gorilla/websocket"
)

// websocketConn is a full-duplex session over a gorilla websocket connection.
type websocketConn struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex // sync general write with ping write.
	conn      *websocket.Conn
	sid       string
	closed    bool
	closeCh   chan struct{}
	opts      websocketConnOptions
	pingTimer *time.Timer
}

type websocketConnOptions struct {
	pingInterval time.Duration
	writeTimeout time.Duration
}

func dialWebsocket(ctx context.Context, opts Options) (conn, error) {
	u, err := websocketURL(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: opts.ConnectTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	handshake, err := encodeHandshake(opts.Token)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	deadline := time.Now().Add(opts.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, handshake); err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Time{})

	_ = ws.SetReadDeadline(deadline)
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})
	first, err := protocol.DecodeFrame(data)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	sid, err := handshakeResult(first)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return newWebsocketConn(ws, sid, websocketConnOptions{
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
	}), nil
}

func newWebsocketConn(ws *websocket.Conn, sid string, opts websocketConnOptions) *websocketConn {
	c := &websocketConn{
		conn:    ws,
		sid:     sid,
		closeCh: make(chan struct{}),
		opts:    opts,
	}
	if opts.pingInterval > 0 {
		ws.SetPongHandler(func(string) error {
			c.extendReadDeadline()
			return nil
		})
		c.extendReadDeadline()
		c.addPing()
	}
	return c
}

func (c *websocketConn) extendReadDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.opts.pingInterval))
}

func (c *websocketConn) ping() {
	select {
	case <-c.closeCh:
		return
	default:
		deadline := time.Now().Add(c.opts.pingInterval / 2)
		c.writeMu.Lock()
		err := c.conn.WriteControl(websocket.PingMessage, nil, deadline)
		c.writeMu.Unlock()
		if err != nil {
			// Read deadline expires and ReadLoop reports ping timeout.
			return
		}
		c.addPing()
	}
}

func (c *websocketConn) addPing() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pingTimer = time.AfterFunc(c.opts.pingInterval, c.ping)
	c.mu.Unlock()
}

func (c *websocketConn) Name() string {
	return NameWebsocket
}

func (c *websocketConn) SID() string {
	return c.sid
}

func (c *websocketConn) Write(frame []byte) error {
	select {
	case <-c.closeCh:
		return ErrNotConnected
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}
	err := c.conn.WriteMessage(websocket.TextMessage, frame)
	if err != nil {
		return err
	}
	if c.opts.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	return nil
}

func (c *websocketConn) ReadLoop(onFrame func(protocol.Frame)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return c.readError(err)
		}
		if c.opts.pingInterval > 0 {
			c.extendReadDeadline()
		}
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			// Skip garbage but keep the session.
			continue
		}
		if f.Event == protocol.EventDisconnect {
			return errServerDisconnect
		}
		onFrame(f)
	}
}

func (c *websocketConn) readError(err error) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errPingTimeout
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		return errTransportClose
	}
	return err
}

const closeFrameWait = time.Second

func (c *websocketConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	close(c.closeCh)
	c.mu.Unlock()
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
