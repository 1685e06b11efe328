package devserver

import (
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/restapi"

	"github.com/google/uuid"
)

const maxNotifications = 100

var (
	errChatNotFound = errors.New("chat not found")
	errNotAllowed   = errors.New("not a participant")
)

type chatRecord struct {
	chat     restapi.Chat
	messages []protocol.ChatMessage
}

// memoryStore is the in-memory backend behind the REST API and realtime
// events.
type memoryStore struct {
	mu            sync.RWMutex
	chats         map[string]*chatRecord
	notifications map[string][]json.RawMessage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		chats:         make(map[string]*chatRecord),
		notifications: make(map[string][]json.RawMessage),
	}
}

// ensureParticipant creates the chat if needed and adds user to participants.
func (s *memoryStore) ensureParticipant(chatID string, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chats[chatID]
	if !ok {
		rec = &chatRecord{chat: restapi.Chat{ID: chatID, UpdatedAt: time.Now().UTC()}}
		s.chats[chatID] = rec
	}
	if !slices.Contains(rec.chat.Participants, userID) {
		rec.chat.Participants = append(rec.chat.Participants, userID)
	}
}

func (s *memoryStore) chat(chatID string, userID string) (restapi.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chats[chatID]
	if !ok {
		return restapi.Chat{}, errChatNotFound
	}
	if !slices.Contains(rec.chat.Participants, userID) {
		return restapi.Chat{}, errNotAllowed
	}
	return copyChat(rec.chat), nil
}

func copyChat(c restapi.Chat) restapi.Chat {
	c.Participants = slices.Clone(c.Participants)
	if c.LastMessage != nil {
		last := *c.LastMessage
		c.LastMessage = &last
	}
	return c
}

// userChats returns chats of user, most recently updated first.
func (s *memoryStore) userChats(userID string) []restapi.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]restapi.Chat, 0)
	for _, rec := range s.chats {
		if slices.Contains(rec.chat.Participants, userID) {
			chats = append(chats, copyChat(rec.chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats
}

func (s *memoryStore) addMessage(chatID string, userID string, content string, contentType protocol.ContentType, metadata map[string]any) protocol.ChatMessage {
	if contentType == "" {
		contentType = protocol.ContentTypeText
	}
	now := time.Now().UTC()
	msg := protocol.ChatMessage{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    userID,
		Content:     content,
		ContentType: contentType,
		Metadata:    metadata,
		ReadBy:      []string{userID},
		CreatedAt:   now.Format(time.RFC3339Nano),
	}
	s.ensureParticipant(chatID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.chats[chatID]
	rec.messages = append(rec.messages, msg)
	last := msg
	rec.chat.LastMessage = &last
	rec.chat.UpdatedAt = now
	return msg
}

// messages returns a page of messages, newest first.
func (s *memoryStore) messages(chatID string, userID string, page int, limit int) ([]protocol.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chats[chatID]
	if !ok {
		return nil, errChatNotFound
	}
	if !slices.Contains(rec.chat.Participants, userID) {
		return nil, errNotAllowed
	}
	res := make([]protocol.ChatMessage, 0, limit)
	start := (page - 1) * limit
	for i := len(rec.messages) - 1 - start; i >= 0 && len(res) < limit; i-- {
		res = append(res, rec.messages[i])
	}
	return res, nil
}

// markRead returns IDs which were actually found in the chat.
func (s *memoryStore) markRead(chatID string, userID string, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chats[chatID]
	if !ok {
		return nil, errChatNotFound
	}
	var marked []string
	for i := range rec.messages {
		msg := &rec.messages[i]
		if !slices.Contains(messageIDs, msg.ID) {
			continue
		}
		if !slices.Contains(msg.ReadBy, userID) {
			msg.ReadBy = append(msg.ReadBy, userID)
		}
		marked = append(marked, msg.ID)
	}
	return marked, nil
}

func (s *memoryStore) addNotification(userID string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]json.RawMessage{payload}, s.notifications[userID]...)
	if len(items) > maxNotifications {
		items = items[:maxNotifications]
	}
	s.notifications[userID] = items
}

func (s *memoryStore) userNotifications(userID string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]json.RawMessage, 0, len(s.notifications[userID])), s.notifications[userID]...)
}
