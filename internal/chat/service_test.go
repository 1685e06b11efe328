package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/metrics"
	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event string
	data  any
}

type fakeSocket struct {
	mu      sync.Mutex
	token   string
	events  transport.Events
	opened  bool
	closed  bool
	live    bool
	emitted []emitted
	emitErr error
}

func (f *fakeSocket) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
}

func (f *fakeSocket) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.live = false
}

func (f *fakeSocket) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emitted{event: event, data: data})
	return nil
}

func (f *fakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeSocket) Name() string {
	return "fake"
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSocket) sent() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emitted...)
}

// Server side simulation.

func (f *fakeSocket) serverConnect() {
	f.mu.Lock()
	f.live = true
	f.mu.Unlock()
	f.events.OnConnect()
}

func (f *fakeSocket) serverDisconnect(reason string) {
	f.mu.Lock()
	f.live = false
	f.mu.Unlock()
	f.events.OnDisconnect(reason)
}

// serverStop mimics a transport that gave up after a disconnect.
func (f *fakeSocket) serverStop(reason string) {
	f.serverDisconnect(reason)
	f.events.OnClosed()
}

func (f *fakeSocket) serverEvent(event string, data string) {
	f.events.OnEvent(event, protocol.Raw(data))
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
}

func (d *fakeDialer) dial(token string, events transport.Events) Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSocket{token: token, events: events}
	d.sockets = append(d.sockets, s)
	return s
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[len(d.sockets)-1]
}

func (d *fakeDialer) live() []*fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	var res []*fakeSocket
	for _, s := range d.sockets {
		if !s.isClosed() {
			res = append(res, s)
		}
	}
	return res
}

func defaultChatConfig() configtypes.Chat {
	return configtypes.Chat{
		LeavePreviousRoom: true,
		RejoinOnReconnect: true,
	}
}

func newTestService(t *testing.T, cfg configtypes.Chat) (*Service, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	return New(d.dial, Options{Chat: cfg}), d
}

func connected(t *testing.T, s *Service, d *fakeDialer, token string) *fakeSocket {
	t.Helper()
	_, err := s.Connect(token)
	require.NoError(t, err)
	sock := d.last()
	sock.serverConnect()
	require.True(t, s.IsConnected())
	return sock
}

func TestConnectEmptyToken(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	_, err := s.Connect("")
	require.ErrorIs(t, err, ErrEmptyToken)
	require.Empty(t, d.sockets)
}

func TestConnectIsAsync(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	socket, err := s.Connect("tok1")
	require.NoError(t, err)
	require.Same(t, d.last(), socket)
	require.True(t, d.last().opened)
	require.True(t, s.HasConnection())
	require.False(t, s.IsConnected())
	require.Equal(t, "tok1", s.Token())
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var disconnected []any
	connects := 0
	s.On(EventConnected, func(any) { connects++ })
	s.On(EventDisconnected, func(data any) { disconnected = append(disconnected, data) })

	_, err := s.Connect("tok1")
	require.NoError(t, err)
	sock := d.last()

	sock.serverConnect()
	require.True(t, s.IsConnected())
	require.Equal(t, 1, connects)

	sock.serverDisconnect("transport close")
	require.False(t, s.IsConnected())
	require.Equal(t, []any{"transport close"}, disconnected)
}

func TestTransportStoppedClearsConnection(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	sock := connected(t, s, d, "tok")

	sock.serverStop(transport.ReasonServerDisconnect)
	require.False(t, s.IsConnected())
	require.False(t, s.HasConnection())
	require.Equal(t, "tok", s.Token())
	require.Equal(t, Status{HasToken: true}, s.Status())

	// A stale callback of the replaced socket does not touch the new one.
	_, err := s.Connect("tok")
	require.NoError(t, err)
	sock.events.OnClosed()
	require.True(t, s.HasConnection())
	require.Len(t, d.sockets, 2)
}

func TestConnectReplacesConnection(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var events []string
	s.On(EventConnected, func(any) { events = append(events, "connected") })
	s.On(EventDisconnected, func(data any) { events = append(events, "disconnected:"+data.(string)) })
	s.On("new_message", func(any) { events = append(events, "new_message") })

	first := connected(t, s, d, "t1")
	_, err := s.Connect("t2")
	require.NoError(t, err)
	second := d.last()

	require.True(t, first.isClosed())
	live := d.live()
	require.Len(t, live, 1)
	require.Same(t, second, live[0])
	require.Equal(t, "t2", live[0].token)
	require.Equal(t, "t2", s.Token())

	events = nil
	// Late callbacks of the replaced transport are ignored.
	first.serverConnect()
	first.serverEvent("new_message", `{}`)
	first.serverDisconnect("transport close")
	first.events.OnError(errors.New("late"))
	require.Empty(t, events)
	require.False(t, s.IsConnected())

	second.serverConnect()
	second.serverEvent("new_message", `{}`)
	require.Equal(t, []string{"connected", "new_message"}, events)
}

func TestConnectWhileConnectedRelaysClientDisconnect(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var reasons []any
	s.On(EventDisconnected, func(data any) { reasons = append(reasons, data) })
	connected(t, s, d, "t1")
	_, err := s.Connect("t2")
	require.NoError(t, err)
	require.Equal(t, []any{transport.ReasonClientDisconnect}, reasons)
}

func TestDisconnectIdempotent(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	reasons := 0
	s.On(EventDisconnected, func(any) { reasons++ })

	require.NotPanics(t, s.Disconnect)
	require.False(t, s.IsConnected())
	require.Equal(t, 0, reasons)

	sock := connected(t, s, d, "tok")
	s.JoinChat("room")
	s.Disconnect()
	s.Disconnect()
	require.True(t, sock.isClosed())
	require.False(t, s.IsConnected())
	require.False(t, s.HasConnection())
	require.Empty(t, s.ActiveRoom())
	require.Empty(t, s.Token())
	require.Equal(t, 1, reasons)
}

func TestListenersSurviveReconnect(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var got []string
	s.On(protocol.EventNewNotification, func(data any) {
		got = append(got, string(data.(protocol.Raw)))
	})

	first := connected(t, s, d, "tok")
	first.serverEvent(protocol.EventNewNotification, `{"_id":"1"}`)
	s.Disconnect()
	second := connected(t, s, d, "tok")
	second.serverEvent(protocol.EventNewNotification, `{"_id":"2"}`)

	require.Equal(t, []string{`{"_id":"1"}`, `{"_id":"2"}`}, got)
}

func TestListenerOrder(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var calls []int
	for i := 1; i <= 3; i++ {
		i := i
		s.On("new_message", func(any) { calls = append(calls, i) })
	}
	sock := connected(t, s, d, "tok")
	for i := 0; i < 3; i++ {
		sock.serverEvent("new_message", `{}`)
	}
	require.Equal(t, []int{1, 2, 3, 1, 2, 3, 1, 2, 3}, calls)
}

func TestOffStopsDelivery(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	calls := 0
	id := s.On("typing", func(any) { calls++ })
	sock := connected(t, s, d, "tok")
	sock.serverEvent("typing", `{}`)
	s.Off("typing", id)
	s.Off("typing", id)
	s.Off("unknown", id)
	sock.serverEvent("typing", `{}`)
	require.Equal(t, 1, calls)
}

func TestSendPreconditions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(metrics.Config{Registerer: reg})
	require.NoError(t, err)
	d := &fakeDialer{}
	s := New(d.dial, Options{Chat: defaultChatConfig(), Metrics: m})

	require.NotPanics(t, func() {
		s.SendMessage("hello", "", nil)
		s.SetTyping(true)
		s.MarkAsRead([]string{"m1"})
		s.JoinChat("room")
		s.LeaveChat()
		s.SendNotification(protocol.SendNotification{Title: "t"})
	})
	require.Empty(t, d.sockets)
	require.Empty(t, s.ActiveRoom())

	// Connecting but not yet connected.
	_, err = s.Connect("tok")
	require.NoError(t, err)
	s.SendMessage("hello", "", nil)
	s.JoinChat("room")
	require.Empty(t, d.last().sent())

	// Connected without a room.
	d.last().serverConnect()
	s.SendMessage("hello", "", nil)
	s.SetTyping(true)
	s.MarkAsRead([]string{"m1"})
	require.Empty(t, d.last().sent())

	count, err := testutil.GatherAndCount(reg, "colivrt_chat_dropped_intents_total")
	require.NoError(t, err)
	require.Positive(t, count)
}

func TestRoomIntents(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	sock := connected(t, s, d, "tok")

	s.JoinChat("A")
	s.SendMessage("hi", "", nil)
	s.SendMessage("pic", protocol.ContentTypeImage, map[string]any{"w": 10})
	s.SetTyping(true)
	s.SetTyping(false)
	s.MarkAsRead([]string{"m1", "m2"})
	s.MarkAsRead(nil)
	s.LeaveChat()
	s.LeaveChat()

	require.Equal(t, []emitted{
		{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "A"}},
		{event: protocol.IntentSendMessage, data: protocol.SendMessage{ChatID: "A", Content: "hi", ContentType: protocol.ContentTypeText, Metadata: map[string]any{}}},
		{event: protocol.IntentSendMessage, data: protocol.SendMessage{ChatID: "A", Content: "pic", ContentType: protocol.ContentTypeImage, Metadata: map[string]any{"w": 10}}},
		{event: protocol.IntentTyping, data: protocol.Typing{ChatID: "A", IsTyping: true}},
		{event: protocol.IntentTyping, data: protocol.Typing{ChatID: "A", IsTyping: false}},
		{event: protocol.IntentMarkRead, data: protocol.MarkRead{ChatID: "A", MessageIDs: []string{"m1", "m2"}}},
		{event: protocol.IntentLeaveChat, data: protocol.LeaveChat{ChatID: "A"}},
	}, sock.sent())
	require.Empty(t, s.ActiveRoom())
}

func TestJoinChatSwitchesRoom(t *testing.T) {
	t.Run("leave previous room", func(t *testing.T) {
		s, d := newTestService(t, defaultChatConfig())
		sock := connected(t, s, d, "tok")
		s.JoinChat("A")
		s.JoinChat("B")
		require.Equal(t, "B", s.ActiveRoom())
		require.Equal(t, []emitted{
			{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "A"}},
			{event: protocol.IntentLeaveChat, data: protocol.LeaveChat{ChatID: "A"}},
			{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "B"}},
		}, sock.sent())
	})
	t.Run("overwrite room", func(t *testing.T) {
		cfg := defaultChatConfig()
		cfg.LeavePreviousRoom = false
		s, d := newTestService(t, cfg)
		sock := connected(t, s, d, "tok")
		s.JoinChat("A")
		s.JoinChat("B")
		require.Equal(t, "B", s.ActiveRoom())
		require.Equal(t, []emitted{
			{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "A"}},
			{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "B"}},
		}, sock.sent())
	})
	t.Run("same room", func(t *testing.T) {
		s, d := newTestService(t, defaultChatConfig())
		sock := connected(t, s, d, "tok")
		s.JoinChat("A")
		s.JoinChat("A")
		require.Len(t, sock.sent(), 2)
		require.Equal(t, protocol.IntentJoinChat, sock.sent()[1].event)
	})
}

func TestRejoinAfterTransportReconnect(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	sock := connected(t, s, d, "tok")
	s.JoinChat("A")

	sock.serverDisconnect(transport.ReasonTransportClose)
	require.Equal(t, "A", s.ActiveRoom())
	s.SendMessage("lost", "", nil)

	sock.serverConnect()
	sent := sock.sent()
	require.Len(t, sent, 2)
	require.Equal(t, emitted{event: protocol.IntentJoinChat, data: protocol.JoinChat{ChatID: "A"}}, sent[1])
}

func TestNoRejoinWhenDisabled(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.RejoinOnReconnect = false
	s, d := newTestService(t, cfg)
	sock := connected(t, s, d, "tok")
	s.JoinChat("A")
	sock.serverDisconnect(transport.ReasonTransportClose)
	sock.serverConnect()
	require.Len(t, sock.sent(), 1)
}

func TestTypingRateLimit(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.TypingRateLimit = 0.001
	s, d := newTestService(t, cfg)
	sock := connected(t, s, d, "tok")
	s.JoinChat("A")
	s.SetTyping(true)
	s.SetTyping(true)
	s.SetTyping(true)
	s.SetTyping(false)

	var typing []protocol.Typing
	for _, e := range sock.sent() {
		if e.event == protocol.IntentTyping {
			typing = append(typing, e.data.(protocol.Typing))
		}
	}
	require.Equal(t, []protocol.Typing{{ChatID: "A", IsTyping: true}, {ChatID: "A", IsTyping: false}}, typing)
}

func TestEmitErrorIsSoft(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	sock := connected(t, s, d, "tok")
	sock.emitErr = transport.ErrNotConnected
	require.NotPanics(t, func() {
		s.JoinChat("A")
		s.SendMessage("x", "", nil)
	})
	require.Equal(t, "A", s.ActiveRoom())
}

func TestErrorsRelayed(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	var errs []error
	s.On(EventError, func(data any) { errs = append(errs, data.(error)) })
	_, err := s.Connect("tok")
	require.NoError(t, err)
	sock := d.last()
	sock.events.OnConnectError(&transport.ConnectError{Message: "invalid token"})
	sock.serverConnect()
	sock.events.OnError(errors.New("room not found"))
	require.Len(t, errs, 2)
	var connectErr *transport.ConnectError
	require.ErrorAs(t, errs[0], &connectErr)
	require.EqualError(t, errs[1], "room not found")
}

func TestListenerMayDisconnect(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	calls := 0
	s.On("new_message", func(any) {
		calls++
		s.Disconnect()
	})
	s.On("new_message", func(any) { calls++ })
	sock := connected(t, s, d, "tok")
	require.NotPanics(t, func() {
		sock.serverEvent("new_message", `{}`)
	})
	require.Equal(t, 2, calls)
	require.False(t, s.HasConnection())
}

func TestStatus(t *testing.T) {
	s, d := newTestService(t, defaultChatConfig())
	require.Equal(t, Status{}, s.Status())
	connected(t, s, d, "tok")
	s.JoinChat("A")
	require.Equal(t, Status{Connected: true, HasToken: true, Room: "A", Transport: "fake"}, s.Status())
}
