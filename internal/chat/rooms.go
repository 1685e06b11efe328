package chat

import (
	"github.com/colivhub/colivrt/internal/protocol"
)

// connectedSocket returns the live socket or nil.
func (s *Service) connectedSocket() Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil
	}
	return s.socket
}

// roomSocket returns the live socket and the active room, or nil with the
// reason the precondition failed.
func (s *Service) roomSocket() (Socket, string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.socket == nil {
		return nil, "", dropNotConnected
	}
	if s.room == "" {
		return nil, "", dropNoRoom
	}
	return s.socket, s.room, ""
}

// JoinChat makes roomID the active room. Without a live connection the call
// is dropped. When another room is active a leave_chat for it is sent first
// unless chat.leave_previous_room is off.
func (s *Service) JoinChat(roomID string) {
	if roomID == "" {
		s.drop(protocol.IntentJoinChat, dropInvalid)
		return
	}
	s.mu.Lock()
	if !s.connected || s.socket == nil {
		s.mu.Unlock()
		s.drop(protocol.IntentJoinChat, dropNotConnected)
		return
	}
	socket := s.socket
	previous := s.room
	s.room = roomID
	s.mu.Unlock()

	if previous != "" && previous != roomID && s.cfg.LeavePreviousRoom {
		s.emit(socket, protocol.IntentLeaveChat, protocol.LeaveChat{ChatID: previous})
	}
	s.emit(socket, protocol.IntentJoinChat, protocol.JoinChat{ChatID: roomID})
}

// LeaveChat leaves and clears the active room. No-op without an active room.
func (s *Service) LeaveChat() {
	s.mu.Lock()
	room := s.room
	if room == "" {
		s.mu.Unlock()
		return
	}
	s.room = ""
	socket := s.socket
	connected := s.connected
	s.mu.Unlock()

	if !connected || socket == nil {
		s.drop(protocol.IntentLeaveChat, dropNotConnected)
		return
	}
	s.emit(socket, protocol.IntentLeaveChat, protocol.LeaveChat{ChatID: room})
}

// SendMessage sends a message to the active room. Empty contentType means
// text, nil metadata is sent as an empty object.
func (s *Service) SendMessage(content string, contentType protocol.ContentType, metadata map[string]any) {
	socket, room, reason := s.roomSocket()
	if socket == nil {
		s.drop(protocol.IntentSendMessage, reason)
		return
	}
	if contentType == "" {
		contentType = protocol.ContentTypeText
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	s.emit(socket, protocol.IntentSendMessage, protocol.SendMessage{
		ChatID:      room,
		Content:     content,
		ContentType: contentType,
		Metadata:    metadata,
	})
}

// SetTyping reports typing state in the active room. Typing starts are rate
// limited, typing stops are always sent.
func (s *Service) SetTyping(isTyping bool) {
	socket, room, reason := s.roomSocket()
	if socket == nil {
		s.drop(protocol.IntentTyping, reason)
		return
	}
	if isTyping && s.typing != nil && !s.typing.Allow() {
		s.metrics.IncDroppedIntent(protocol.IntentTyping, dropRateLimited)
		return
	}
	s.emit(socket, protocol.IntentTyping, protocol.Typing{ChatID: room, IsTyping: isTyping})
}

// MarkAsRead marks messages of the active room as read.
func (s *Service) MarkAsRead(messageIDs []string) {
	socket, room, reason := s.roomSocket()
	if socket == nil {
		s.drop(protocol.IntentMarkRead, reason)
		return
	}
	if len(messageIDs) == 0 {
		return
	}
	s.emit(socket, protocol.IntentMarkRead, protocol.MarkRead{ChatID: room, MessageIDs: messageIDs})
}

// SendNotification pushes an ad-hoc notification through the server.
func (s *Service) SendNotification(n protocol.SendNotification) {
	socket := s.connectedSocket()
	if socket == nil {
		s.drop(protocol.IntentSendNotification, dropNotConnected)
		return
	}
	s.emit(socket, protocol.IntentSendNotification, n)
}
