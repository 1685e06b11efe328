package devserver

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxPollBodySize  = 1 << 20
	maxFramesPerPoll  = 64
)

func (s *Server) handlePollPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPollBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		s.pollHandshake(w, body)
		return
	}
	sess := s.hub.get(sid)
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	frames, err := protocol.DecodeFrames(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess.touch()
	for _, f := range frames {
		s.dispatch(sess, f)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pollHandshake(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	userID, reply := s.handshake(body)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(reply)
		return
	}
	sess := newSession(uuid.NewString(), userID, transportPolling)
	s.hub.add(sess)
	log.Debug().Str("sid", sess.id).Str("user", userID).Str("transport", transportPolling).Msg("client connection established")
	reply, _ = protocol.EncodeFrame(protocol.EventConnect, protocol.ConnectReply{SID: sess.id})
	_, _ = w.Write(reply)
}

// handlePollGet waits for queued frames up to the poll timeout.
func (s *Server) handlePollGet(w http.ResponseWriter, r *http.Request) {
	sess := s.hub.get(r.URL.Query().Get("sid"))
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sess.touch()
	defer sess.touch()

	timer := time.NewTimer(s.cfg.DevServer.PollTimeout.ToDuration())
	defer timer.Stop()

	var first []byte
	select {
	case <-r.Context().Done():
		return
	case <-sess.closed:
		s.hub.remove(sess)
		w.WriteHeader(http.StatusGone)
		return
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return
	case first = <-sess.out:
	}

	frames := [][]byte{first}
	disconnect := isDisconnectFrame(first)
drain:
	for !disconnect && len(frames) < maxFramesPerPoll {
		select {
		case f := <-sess.out:
			frames = append(frames, f)
			disconnect = isDisconnectFrame(f)
		default:
			break drain
		}
	}
	if disconnect {
		s.hub.remove(sess)
		sess.close()
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range frames {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(f)
	}
	buf.WriteByte(']')
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handlePollDelete(w http.ResponseWriter, r *http.Request) {
	sess := s.hub.get(r.URL.Query().Get("sid"))
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.hub.remove(sess)
	sess.close()
	log.Debug().Str("sid", sess.id).Str("user", sess.userID).Msg("client connection completed")
	w.WriteHeader(http.StatusNoContent)
}
