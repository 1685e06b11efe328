// Package chat owns the realtime connection of the application: its lifecycle,
// the active chat room and the relay of server events to local listeners.
package chat

import (
	"errors"
	"sync"

	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/metrics"
	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/relay"
	"github.com/colivhub/colivrt/internal/transport"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Events relayed by Service in addition to server pushed events.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
)

var ErrEmptyToken = errors.New("chat: empty token")

// Reasons for dropped intents.
const (
	dropNotConnected = "not_connected"
	dropNoRoom       = "no_room"
	dropRateLimited  = "rate_limited"
	dropTransport    = "transport_error"
	dropInvalid      = "invalid"
)

type Options struct {
	Chat configtypes.Chat
	// Relay is shared with other components. A new one is created when nil.
	Relay   *relay.Relay
	Metrics *metrics.Registry
}

// Status is a point in time view of the connection.
type Status struct {
	Connected bool
	HasToken  bool
	Room      string
	Transport string
}

// Service keeps at most one live Socket. Listeners registered with On live
// in the relay and survive reconnects and Connect calls.
type Service struct {
	dial    Dialer
	relay   *relay.Relay
	cfg     configtypes.Chat
	metrics *metrics.Registry
	typing  *rate.Limiter

	mu         sync.RWMutex
	socket     Socket
	generation uint64
	connected  bool
	token      string
	room       string
}

func New(dial Dialer, opts Options) *Service {
	r := opts.Relay
	if r == nil {
		r = relay.New(relay.WithMetrics(opts.Metrics))
	}
	s := &Service{
		dial:    dial,
		relay:   r,
		cfg:     opts.Chat,
		metrics: opts.Metrics,
	}
	if opts.Chat.TypingRateLimit > 0 {
		s.typing = rate.NewLimiter(rate.Limit(opts.Chat.TypingRateLimit), 1)
	}
	return s
}

// Relay returns the relay used to dispatch events.
func (s *Service) Relay() *relay.Relay {
	return s.relay
}

// Connect tears down an existing connection and starts a new one
// authenticated with token. It does not wait for the connection to be
// established. The returned Socket is for advanced use only.
func (s *Service) Connect(token string) (Socket, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	s.mu.Lock()
	old, wasConnected := s.teardownLocked()
	s.generation++
	gen := s.generation
	s.token = token
	socket := s.dial(token, s.bind(gen))
	s.socket = socket
	s.mu.Unlock()

	if old != nil {
		old.Close()
		log.Debug().Msg("previous realtime connection closed")
	}
	if wasConnected {
		s.relay.Emit(EventDisconnected, transport.ReasonClientDisconnect)
	}
	socket.Open()
	return socket, nil
}

// Disconnect closes the connection if any and clears the active room. Calling
// it without a connection is a no-op.
func (s *Service) Disconnect() {
	s.mu.Lock()
	old, wasConnected := s.teardownLocked()
	s.generation++
	s.token = ""
	s.mu.Unlock()

	if old == nil {
		return
	}
	old.Close()
	log.Debug().Msg("realtime connection closed")
	if wasConnected {
		s.relay.Emit(EventDisconnected, transport.ReasonClientDisconnect)
	}
}

func (s *Service) teardownLocked() (Socket, bool) {
	old := s.socket
	wasConnected := s.connected
	s.socket = nil
	s.connected = false
	s.room = ""
	return old, wasConnected
}

// bind returns transport callbacks which are ignored once the socket they
// belong to is replaced.
func (s *Service) bind(gen uint64) transport.Events {
	return transport.Events{
		OnConnect: func() {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			s.connected = true
			socket := s.socket
			room := s.room
			s.mu.Unlock()

			log.Info().Str("transport", socket.Name()).Msg("realtime connected")
			if room != "" && s.cfg.RejoinOnReconnect {
				s.emit(socket, protocol.IntentJoinChat, protocol.JoinChat{ChatID: room})
			}
			s.relay.Emit(EventConnected, nil)
		},
		OnDisconnect: func(reason string) {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			s.connected = false
			s.mu.Unlock()

			log.Info().Str("reason", reason).Msg("realtime disconnected")
			s.relay.Emit(EventDisconnected, reason)
		},
		OnConnectError: func(err error) {
			if !s.current(gen) {
				return
			}
			log.Warn().Err(err).Msg("realtime connection error")
			s.relay.Emit(EventError, err)
		},
		OnError: func(err error) {
			if !s.current(gen) {
				return
			}
			log.Warn().Err(err).Msg("realtime server error")
			s.relay.Emit(EventError, err)
		},
		OnEvent: func(event string, data protocol.Raw) {
			if !s.current(gen) {
				return
			}
			s.relay.Emit(event, data)
		},
		OnClosed: func() {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			// The token is kept so that a later Connect can reuse it.
			s.socket = nil
			s.connected = false
			s.mu.Unlock()
			log.Info().Msg("realtime connection stopped, waiting for explicit connect")
		},
	}
}

func (s *Service) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}

// On registers a listener. Server events carry protocol.Raw, connected
// carries nil, disconnected carries the reason string and error an error.
func (s *Service) On(event string, handler relay.Handler) relay.ListenerID {
	return s.relay.On(event, handler)
}

// Off removes a listener registered with On.
func (s *Service) Off(event string, id relay.ListenerID) {
	s.relay.Off(event, id)
}

func (s *Service) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// HasConnection reports whether a connection exists, established, connecting
// or reconnecting. It is false once the transport stopped for good.
func (s *Service) HasConnection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socket != nil
}

// Token used by the current connection.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Service) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Connected: s.connected,
		HasToken:  s.token != "",
		Room:      s.room,
	}
	if s.socket != nil && s.connected {
		st.Transport = s.socket.Name()
	}
	return st
}

func (s *Service) emit(socket Socket, intent string, data any) {
	if err := socket.Emit(intent, data); err != nil {
		s.drop(intent, dropTransport)
		log.Warn().Err(err).Str("intent", intent).Msg("error sending intent")
	}
}

func (s *Service) drop(intent string, reason string) {
	s.metrics.IncDroppedIntent(intent, reason)
	log.Warn().Str("intent", intent).Str("reason", reason).Msg("intent dropped")
}
