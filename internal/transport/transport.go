// Package transport implements the client side of the realtime connection:
// a websocket transport with long-polling fallback, an auth handshake and
// bounded automatic reconnection.
package transport

import (
	"errors"
	"fmt"

	"github.com/colivhub/colivrt/internal/protocol"
)

// Disconnect reasons passed to Events.OnDisconnect.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrClosed           = errors.New("transport: client closed")
	ErrUnexpectedFrame  = errors.New("transport: unexpected handshake frame")
	ErrNoTransport      = errors.New("transport: no usable transport")
	errServerDisconnect = errors.New("server disconnect")
	errTransportClose   = errors.New("transport close")
	errPingTimeout      = errors.New("ping timeout")
)

// ConnectError is returned when the server rejected the handshake, ex. because
// of an invalid token.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect rejected: %s", e.Message)
}

// Events are invoked from the client goroutine. They must not block for long.
type Events struct {
	OnConnect      func()
	OnDisconnect   func(reason string)
	OnConnectError func(err error)
	OnError        func(err error)
	OnEvent        func(event string, data protocol.Raw)
	// OnClosed is called once the client stopped on its own, after a server
	// disconnect, a rejected handshake or when reconnection gave up. It is not
	// called after Close.
	OnClosed func()
}

// conn is a single established transport session.
type conn interface {
	Name() string
	SID() string
	// Write sends one encoded frame.
	Write(frame []byte) error
	// ReadLoop delivers incoming frames until the session ends.
	ReadLoop(onFrame func(protocol.Frame)) error
	Close() error
}

// handshakeResult interprets the first frame received from the server.
func handshakeResult(f protocol.Frame) (string, error) {
	switch f.Event {
	case protocol.EventConnect:
		var sid string
		if len(f.Data) > 0 {
			sid = gjsonString(f.Data, "sid")
		}
		return sid, nil
	case protocol.EventConnectError:
		return "", &ConnectError{Message: protocol.ErrorMessage(f.Data)}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Event)
	}
}

func encodeHandshake(token string) ([]byte, error) {
	return protocol.EncodeFrame(protocol.EventHandshake, protocol.Handshake{Auth: protocol.HandshakeAuth{Token: token}})
}
