// Package protocol describes the JSON wire contract spoken with the realtime
// chat/notification server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Transport lifecycle events.
const (
	// EventHandshake is the first frame sent by a client, its data is a Handshake.
	EventHandshake    = "handshake"
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
	EventError        = "error"
)

// Application events pushed by the server.
const (
	EventNewNotification = "new_notification"
	EventNewMessage      = "new_message"
	EventTyping          = "typing"
	EventMessagesRead    = "messages_read"
)

// Outbound intents.
const (
	IntentJoinChat         = "join_chat"
	IntentLeaveChat        = "leave_chat"
	IntentSendMessage      = "send_message"
	IntentMarkRead         = "mark_read"
	IntentTyping           = "typing"
	IntentSendNotification = "send_notification"
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrNoEvent        = errors.New("protocol: frame without event name")
)

// Raw is JSON left untouched, ex. application payload of a pushed event.
type Raw = json.RawMessage

// Frame is a single event travelling in either direction.
type Frame struct {
	Event string `json:"event"`
	Data  Raw    `json:"data,omitempty"`
}

// Handshake is the first message sent by a client. The server answers with
// a connect or connect_error frame.
type Handshake struct {
	Auth HandshakeAuth `json:"auth"`
}

type HandshakeAuth struct {
	Token string `json:"token"`
}

// ConnectReply is the data of the connect frame.
type ConnectReply struct {
	SID string `json:"sid"`
}

// ErrorReply is the data of connect_error and error frames.
type ErrorReply struct {
	Message string `json:"message"`
}

// NewFrame encodes data and wraps it into a Frame.
func NewFrame(event string, data any) (Frame, error) {
	if event == "" {
		return Frame{}, ErrNoEvent
	}
	if data == nil {
		return Frame{Event: event}, nil
	}
	if raw, ok := data.(Raw); ok {
		return Frame{Event: event, Data: raw}, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: encode %s: %w", event, err)
	}
	return Frame{Event: event, Data: encoded}, nil
}

// EncodeFrame returns the wire form of an event.
func EncodeFrame(event string, data any) ([]byte, error) {
	f, err := NewFrame(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// DecodeFrame extracts event name and raw data without unmarshaling the
// application payload.
func DecodeFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, ErrMalformedFrame
	}
	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return Frame{}, ErrMalformedFrame
	}
	event := result.Get("event")
	if event.Type != gjson.String || event.String() == "" {
		return Frame{}, ErrNoEvent
	}
	f := Frame{Event: event.String()}
	if d := result.Get("data"); d.Exists() && d.Type != gjson.Null {
		f.Data = Raw(d.Raw)
	}
	return f, nil
}

// DecodeFrames decodes a JSON array of frames as used by the polling transport.
func DecodeFrames(data []byte) ([]Frame, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedFrame
	}
	result := gjson.ParseBytes(data)
	if !result.IsArray() {
		return nil, ErrMalformedFrame
	}
	var frames []Frame
	var decodeErr error
	result.ForEach(func(_, value gjson.Result) bool {
		f, err := DecodeFrame([]byte(value.Raw))
		if err != nil {
			decodeErr = err
			return false
		}
		frames = append(frames, f)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return frames, nil
}

// ErrorMessage returns the message field of an error payload, or the payload
// itself when it is a bare JSON string.
func ErrorMessage(data Raw) string {
	if len(data) == 0 {
		return ""
	}
	result := gjson.ParseBytes(data)
	if result.Type == gjson.String {
		return result.String()
	}
	return result.Get("message").String()
}
