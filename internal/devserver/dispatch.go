package devserver

import (
	"encoding/json"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// dispatch routes a client intent frame.
func (s *Server) dispatch(sess *session, f protocol.Frame) {
	var err error
	switch f.Event {
	case protocol.IntentJoinChat:
		err = s.joinChat(sess, f.Data)
	case protocol.IntentLeaveChat:
		err = s.leaveChat(sess, f.Data)
	case protocol.IntentSendMessage:
		err = s.sendMessage(sess, f.Data)
	case protocol.IntentTyping:
		err = s.typing(sess, f.Data)
	case protocol.IntentMarkRead:
		err = s.markRead(sess, f.Data)
	case protocol.IntentSendNotification:
		err = s.sendNotification(sess, f.Data)
	default:
		s.replyError(sess, "unknown event "+f.Event)
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("sid", sess.id).Str("event", f.Event).Msg("intent rejected")
		s.replyError(sess, err.Error())
	}
}

type intentError string

func (e intentError) Error() string { return string(e) }

const (
	errBadPayload intentError = "malformed payload"
	errNoChatID   intentError = "chatId required"
	errNotInChat  intentError = "not in chat"
)

func (s *Server) replyError(sess *session, msg string) {
	frame, _ := protocol.EncodeFrame(protocol.EventError, protocol.ErrorReply{Message: msg})
	sess.enqueue(frame)
}

func decodeIntent(data protocol.Raw, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (s *Server) joinChat(sess *session, data protocol.Raw) error {
	var req protocol.JoinChat
	if err := decodeIntent(data, &req); err != nil {
		return err
	}
	if req.ChatID == "" {
		return errNoChatID
	}
	s.store.ensureParticipant(req.ChatID, sess.userID)
	s.hub.join(sess, req.ChatID)
	return nil
}

func (s *Server) leaveChat(sess *session, data protocol.Raw) error {
	var req protocol.LeaveChat
	if err := decodeIntent(data, &req); err != nil {
		return err
	}
	if req.ChatID == "" {
		return errNoChatID
	}
	s.hub.leave(sess, req.ChatID)
	return nil
}

func (s *Server) sendMessage(sess *session, data protocol.Raw) error {
	var req protocol.SendMessage
	if err := decodeIntent(data, &req); err != nil {
		return err
	}
	if req.ChatID == "" {
		return errNoChatID
	}
	if !s.hub.inRoom(sess, req.ChatID) {
		return errNotInChat
	}
	msg := s.store.addMessage(req.ChatID, sess.userID, req.Content, req.ContentType, req.Metadata)
	s.publishMessage(msg)
	return nil
}

func (s *Server) publishMessage(msg protocol.ChatMessage) {
	frame, err := protocol.EncodeFrame(protocol.EventNewMessage, msg)
	if err != nil {
		log.Error().Err(err).Str("chat", msg.ChatID).Msg("error encoding message")
		return
	}
	n := s.hub.broadcast(msg.ChatID, frame, "")
	log.Debug().Str("chat", msg.ChatID).Str("message", msg.ID).Int("receivers", n).Msg("message published")
}

func (s *Server) typing(sess *session, data protocol.Raw) error {
	var req protocol.Typing
	if err := decodeIntent(data, &req); err != nil {
		return err
	}
	if req.ChatID == "" {
		return errNoChatID
	}
	if !s.hub.inRoom(sess, req.ChatID) {
		return errNotInChat
	}
	frame, err := protocol.EncodeFrame(protocol.EventTyping, protocol.Typing{
		ChatID:   req.ChatID,
		IsTyping: req.IsTyping,
		UserID:   sess.userID,
	})
	if err != nil {
		return err
	}
	s.hub.broadcast(req.ChatID, frame, sess.id)
	return nil
}

func (s *Server) markRead(sess *session, data protocol.Raw) error {
	var req protocol.MarkRead
	if err := decodeIntent(data, &req); err != nil {
		return err
	}
	if req.ChatID == "" {
		return errNoChatID
	}
	marked, err := s.store.markRead(req.ChatID, sess.userID, req.MessageIDs)
	if err != nil {
		return err
	}
	if len(marked) == 0 {
		return nil
	}
	frame, err := protocol.EncodeFrame(protocol.EventMessagesRead, protocol.MessagesRead{
		ChatID:     req.ChatID,
		UserID:     sess.userID,
		MessageIDs: marked,
	})
	if err != nil {
		return err
	}
	s.hub.broadcast(req.ChatID, frame, "")
	return nil
}

// sendNotification stamps the payload as a stored notification and pushes it
// to the target user, the sender when no userId given.
func (s *Server) sendNotification(sess *session, data protocol.Raw) error {
	if !isJSONObject(data) {
		return errBadPayload
	}
	target := gjsonString(data, "userId")
	if target == "" {
		target = sess.userID
	}
	payload, err := stampNotification(data, time.Now())
	if err != nil {
		return err
	}
	s.notify(target, payload)
	return nil
}

func stampNotification(data []byte, now time.Time) ([]byte, error) {
	payload, err := sjson.DeleteBytes(data, "userId")
	if err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "_id", uuid.NewString()); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "createdAt", now.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	return sjson.SetBytes(payload, "is_read", false)
}

// notify stores a notification and pushes it to every session of user.
func (s *Server) notify(userID string, payload []byte) {
	s.store.addNotification(userID, payload)
	frame, err := protocol.EncodeFrame(protocol.EventNewNotification, protocol.Raw(payload))
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("error encoding notification")
		return
	}
	n := s.hub.sendToUser(userID, frame)
	log.Debug().Str("user", userID).Int("receivers", n).Msg("notification sent")
}
