package devserver

import (
	"net/http"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	transportWebsocket = "websocket"
	transportPolling   = "polling"

	websocketWriteTimeout     = time.Second
	websocketMessageSizeLimit = 65536
)

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade error")
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(websocketMessageSizeLimit)

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	userID, reply := s.handshake(data)
	if userID == "" {
		_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, reply)
		return
	}

	sess := newSession(uuid.NewString(), userID, transportWebsocket)
	reply, _ = protocol.EncodeFrame(protocol.EventConnect, protocol.ConnectReply{SID: sess.id})
	_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		return
	}
	s.hub.add(sess)
	defer func() {
		s.hub.remove(sess)
		sess.close()
	}()

	log.Debug().Str("sid", sess.id).Str("user", userID).Str("transport", transportWebsocket).Msg("client connection established")
	defer func(started time.Time) {
		log.Debug().Str("sid", sess.id).Str("user", userID).Dur("duration", time.Since(started)).Msg("client connection completed")
	}(time.Now())

	pongWait := 3 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(websocketWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go s.writeLoop(conn, sess)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.touch()
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			s.replyError(sess, err.Error())
			continue
		}
		s.dispatch(sess, f)
	}
}

// writeLoop owns all data writes of conn.
func (s *Server) writeLoop(conn *websocket.Conn, sess *session) {
	for {
		select {
		case <-sess.closed:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(websocketWriteTimeout))
			_ = conn.Close()
			return
		case frame := <-sess.out:
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				sess.close()
				_ = conn.Close()
				return
			}
			if isDisconnectFrame(frame) {
				s.hub.remove(sess)
				sess.close()
				// Give the client a moment to read the frame before closing.
				_ = conn.SetReadDeadline(time.Now().Add(websocketWriteTimeout))
				return
			}
		}
	}
}

// handshake validates the first client frame. It returns the user ID, or an
// empty user ID with an encoded connect_error reply.
func (s *Server) handshake(data []byte) (string, []byte) {
	reject := func(msg string) (string, []byte) {
		reply, _ := protocol.EncodeFrame(protocol.EventConnectError, protocol.ErrorReply{Message: msg})
		return "", reply
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil || f.Event != protocol.EventHandshake {
		return reject("handshake expected")
	}
	token := gjsonString(f.Data, "auth.token")
	if token == "" {
		return reject("Authentication error")
	}
	userID, err := s.verify(token)
	if err != nil {
		log.Debug().Err(err).Msg("handshake rejected")
		return reject("Authentication error")
	}
	return userID, nil
}
