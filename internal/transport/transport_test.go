package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/devserver"
	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testSecret = "secret"

type received struct {
	event string
	data  protocol.Raw
}

type recorder struct {
	connects      chan struct{}
	disconnects   chan string
	connectErrors chan error
	events        chan received
	closed        chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		connects:      make(chan struct{}, 16),
		disconnects:   make(chan string, 16),
		connectErrors: make(chan error, 16),
		events:        make(chan received, 16),
		closed:        make(chan struct{}, 16),
	}
}

func (r *recorder) Events() Events {
	return Events{
		OnConnect:      func() { r.connects <- struct{}{} },
		OnDisconnect:   func(reason string) { r.disconnects <- reason },
		OnConnectError: func(err error) { r.connectErrors <- err },
		OnEvent:        func(event string, data protocol.Raw) { r.events <- received{event: event, data: data} },
		OnClosed:       func() { r.closed <- struct{}{} },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	var zero T
	return zero
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client not stopped")
	}
}

func newDevServer(t *testing.T) *devserver.Server {
	t.Helper()
	srv, err := devserver.New(devserver.Config{
		DevServer: configtypes.DevServer{
			HMACSecret:  testSecret,
			PollTimeout: configtypes.Duration(200 * time.Millisecond),
		},
		Path:         "/realtime",
		PingInterval: time.Second,
	})
	require.NoError(t, err)
	return srv
}

func testToken(t *testing.T, user string) string {
	t.Helper()
	token, err := auth.GenerateHS256(testSecret, user, time.Hour)
	require.NoError(t, err)
	return token
}

func testOptions(url string, token string, transports ...string) Options {
	return Options{
		URL:                  url,
		Path:                 "/realtime",
		Token:                token,
		Transports:           transports,
		ConnectTimeout:       2 * time.Second,
		Reconnection:         true,
		ReconnectionAttempts: 2,
		ReconnectionDelay:    10 * time.Millisecond,
		ReconnectionDelayMax: 20 * time.Millisecond,
	}
}

func TestBackoff(t *testing.T) {
	d := nextBackoffDuration(100*time.Millisecond, time.Second, 0)
	require.GreaterOrEqual(t, d, 100*time.Millisecond)
	require.Less(t, d, 150*time.Millisecond)

	d = nextBackoffDuration(100*time.Millisecond, time.Second, 1)
	require.GreaterOrEqual(t, d, 200*time.Millisecond)
	require.Less(t, d, 300*time.Millisecond)

	require.Equal(t, time.Second, nextBackoffDuration(100*time.Millisecond, time.Second, 10))
	require.Equal(t, time.Second, nextBackoffDuration(100*time.Millisecond, time.Second, 100))
}

func TestEndpointURLs(t *testing.T) {
	u, err := websocketURL("https://example.com/base/", "/realtime")
	require.NoError(t, err)
	require.Equal(t, "wss://example.com/base/realtime/websocket", u)

	u, err = websocketURL("http://localhost:3000", "realtime")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:3000/realtime/websocket", u)

	u, err = pollingURL("ws://localhost:3000", "/realtime/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3000/realtime/poll", u)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{ReconnectionDelay: time.Second, ReconnectionDelayMax: time.Millisecond}.withDefaults()
	require.Equal(t, []string{NameWebsocket, NamePolling}, o.Transports)
	require.Equal(t, time.Second, o.ReconnectionDelayMax)
	require.NotNil(t, o.HTTPClient)
	require.Equal(t, defaultPollTimeout, o.PollTimeout)
}

func testRoundTrip(t *testing.T, transportName string, opts Options) {
	t.Helper()
	rec := newRecorder()
	c := New(opts, rec.Events())
	require.ErrorIs(t, c.Emit(protocol.IntentJoinChat, protocol.JoinChat{ChatID: "c1"}), ErrNotConnected)

	c.Open()
	defer c.Close()
	waitFor(t, rec.connects)
	require.True(t, c.Connected())
	require.Equal(t, transportName, c.Name())
	require.NotEmpty(t, c.ID())

	require.NoError(t, c.Emit(protocol.IntentSendNotification, protocol.SendNotification{Title: "hello"}))
	ev := waitFor(t, rec.events)
	require.Equal(t, protocol.EventNewNotification, ev.event)
	require.Equal(t, "hello", gjson.GetBytes(ev.data, "title").String())
}

func TestWebsocketRoundTrip(t *testing.T) {
	ts := httptest.NewServer(newDevServer(t).Handler())
	defer ts.Close()
	testRoundTrip(t, NameWebsocket, testOptions(ts.URL, testToken(t, "alice"), NameWebsocket))
}

func TestPollingRoundTrip(t *testing.T) {
	ts := httptest.NewServer(newDevServer(t).Handler())
	defer ts.Close()
	testRoundTrip(t, NamePolling, testOptions(ts.URL, testToken(t, "alice"), NamePolling))
}

func TestFallbackToPolling(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/realtime/websocket", http.NotFoundHandler())
	mux.Handle("/", newDevServer(t).Handler())
	ts := httptest.NewServer(mux)
	defer ts.Close()
	testRoundTrip(t, NamePolling, testOptions(ts.URL, testToken(t, "alice")))
}

func TestConnectErrorStopsReconnection(t *testing.T) {
	ts := httptest.NewServer(newDevServer(t).Handler())
	defer ts.Close()

	for _, name := range []string{NameWebsocket, NamePolling} {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			c := New(testOptions(ts.URL, "bad", name), rec.Events())
			c.Open()
			defer c.Close()
			err := waitFor(t, rec.connectErrors)
			var connectErr *ConnectError
			require.ErrorAs(t, err, &connectErr)
			require.Equal(t, "Authentication error", connectErr.Message)
			waitDone(t, c)
			require.Len(t, rec.closed, 1)
			require.Len(t, rec.connectErrors, 0)
			require.False(t, c.Connected())
		})
	}
}

func TestReconnectionAttemptsCapped(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	rec := newRecorder()
	c := New(testOptions(url, "token"), rec.Events())
	c.Open()
	defer c.Close()
	waitDone(t, c)
	// Initial attempt and two reconnection attempts.
	require.Len(t, rec.connectErrors, 3)
	require.Len(t, rec.connects, 0)
	require.Len(t, rec.closed, 1)
}

func TestNoReconnection(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	opts := testOptions(url, "token")
	opts.Reconnection = false
	rec := newRecorder()
	c := New(opts, rec.Events())
	c.Open()
	waitDone(t, c)
	require.Len(t, rec.connectErrors, 1)
}

func TestServerDisconnect(t *testing.T) {
	for _, name := range []string{NameWebsocket, NamePolling} {
		t.Run(name, func(t *testing.T) {
			srv := newDevServer(t)
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			rec := newRecorder()
			c := New(testOptions(ts.URL, testToken(t, "alice"), name), rec.Events())
			c.Open()
			defer c.Close()
			waitFor(t, rec.connects)

			srv.DisconnectAll()
			require.Equal(t, ReasonServerDisconnect, waitFor(t, rec.disconnects))
			waitDone(t, c)
			require.Len(t, rec.closed, 1)
			require.Len(t, rec.connects, 0)
			require.False(t, c.Connected())
		})
	}
}

func TestCloseReportsClientDisconnect(t *testing.T) {
	for _, name := range []string{NameWebsocket, NamePolling} {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(newDevServer(t).Handler())
			defer ts.Close()

			rec := newRecorder()
			c := New(testOptions(ts.URL, testToken(t, "alice"), name), rec.Events())
			c.Open()
			waitFor(t, rec.connects)

			c.Close()
			require.Equal(t, ReasonClientDisconnect, waitFor(t, rec.disconnects))
			waitDone(t, c)
			require.Len(t, rec.closed, 0)
			require.ErrorIs(t, c.Emit(protocol.IntentTyping, protocol.Typing{ChatID: "c1"}), ErrNotConnected)
			c.Close()
		})
	}
}

func TestCloseBeforeOpen(t *testing.T) {
	c := New(testOptions("http://127.0.0.1:1", "token"), Events{})
	c.Close()
	waitDone(t, c)
	c.Open()
	require.False(t, c.Connected())
}

// Server accepting every handshake and dropping the first connection.
func flakyServer(t *testing.T, accepted *atomic.Int32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		n := accepted.Add(1)
		reply, _ := protocol.EncodeFrame(protocol.EventConnect, protocol.ConnectReply{SID: "s"})
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestReconnectAfterTransportClose(t *testing.T) {
	var accepted atomic.Int32
	ts := flakyServer(t, &accepted)
	defer ts.Close()

	rec := newRecorder()
	c := New(testOptions(ts.URL, "token", NameWebsocket), rec.Events())
	c.Open()
	defer c.Close()

	waitFor(t, rec.connects)
	reason := waitFor(t, rec.disconnects)
	require.Contains(t, []string{ReasonTransportClose, ReasonTransportError}, reason)
	waitFor(t, rec.connects)
	require.Equal(t, int32(2), accepted.Load())
	require.True(t, c.Connected())
}

// Server accepting the polling handshake and never answering a poll.
func stalledPollServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			reply, _ := protocol.EncodeFrame(protocol.EventConnect, protocol.ConnectReply{SID: "s"})
			_, _ = w.Write(reply)
		case http.MethodGet:
			<-r.Context().Done()
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func TestPollTimeout(t *testing.T) {
	ts := stalledPollServer(t)
	defer ts.Close()

	opts := testOptions(ts.URL, "token", NamePolling)
	opts.Reconnection = false
	opts.PollTimeout = 100 * time.Millisecond
	rec := newRecorder()
	c := New(opts, rec.Events())
	c.Open()
	defer c.Close()

	waitFor(t, rec.connects)
	require.Equal(t, ReasonPingTimeout, waitFor(t, rec.disconnects))
	waitDone(t, c)
	require.False(t, c.Connected())
}

func TestDisconnectReason(t *testing.T) {
	require.Equal(t, ReasonClientDisconnect, disconnectReason(ErrClosed))
	require.Equal(t, ReasonServerDisconnect, disconnectReason(errServerDisconnect))
	require.Equal(t, ReasonPingTimeout, disconnectReason(errPingTimeout))
	require.Equal(t, ReasonTransportClose, disconnectReason(errTransportClose))
	require.Equal(t, ReasonTransportError, disconnectReason(errors.New("boom")))
}
