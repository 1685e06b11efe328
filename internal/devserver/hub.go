package devserver

import (
	"bytes"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/rs/zerolog/log"
)

const sessionQueueSize = 256

var disconnectFrame, _ = protocol.EncodeFrame(protocol.EventDisconnect, "io server disconnect")

type session struct {
	id        string
	userID    string
	transport string
	out       chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(id string, userID string, transport string) *session {
	return &session{
		id:        id,
		userID:    userID,
		transport: transport,
		out:       make(chan []byte, sessionQueueSize),
		closed:    make(chan struct{}),
		lastSeen:  time.Now(),
	}
}

// enqueue never blocks. A session that does not keep up is closed.
func (s *session) enqueue(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		log.Warn().Str("sid", s.id).Str("user", s.userID).Msg("session queue overflow, closing")
		s.close()
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func isDisconnectFrame(frame []byte) bool {
	return bytes.Equal(frame, disconnectFrame)
}

// hub indexes sessions by id, user and room.
type hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	users    map[string]map[string]*session
	rooms    map[string]map[string]*session
	// joined rooms per session
	joined map[string]map[string]struct{}
}

func newHub() *hub {
	return &hub{
		sessions: make(map[string]*session),
		users:    make(map[string]map[string]*session),
		rooms:    make(map[string]map[string]*session),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	if _, ok := h.users[s.userID]; !ok {
		h.users[s.userID] = make(map[string]*session)
	}
	h.users[s.userID][s.id] = s
}

func (h *hub) get(sid string) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sid]
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	if sessions, ok := h.users[s.userID]; ok {
		delete(sessions, s.id)
		if len(sessions) == 0 {
			delete(h.users, s.userID)
		}
	}
	for room := range h.joined[s.id] {
		h.leaveLocked(s, room)
	}
	delete(h.joined, s.id)
}

func (h *hub) join(s *session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*session)
	}
	h.rooms[room][s.id] = s
	if _, ok := h.joined[s.id]; !ok {
		h.joined[s.id] = make(map[string]struct{})
	}
	h.joined[s.id][room] = struct{}{}
}

func (h *hub) leave(s *session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, room)
	delete(h.joined[s.id], room)
}

func (h *hub) leaveLocked(s *session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s.id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *hub) inRoom(s *session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[s.id][room]
	return ok
}

// rooms of a session, for tests and stats.
func (h *hub) roomsOf(s *session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var rooms []string
	for room := range h.joined[s.id] {
		rooms = append(rooms, room)
	}
	return rooms
}

// broadcast sends frame to room members, except the session with id skip.
func (h *hub) broadcast(room string, frame []byte, skip string) int {
	h.mu.RLock()
	members := make([]*session, 0, len(h.rooms[room]))
	for id, s := range h.rooms[room] {
		if id != skip {
			members = append(members, s)
		}
	}
	h.mu.RUnlock()
	sent := 0
	for _, s := range members {
		if s.enqueue(frame) {
			sent++
		}
	}
	return sent
}

func (h *hub) sendToUser(userID string, frame []byte) int {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.users[userID]))
	for _, s := range h.users[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	sent := 0
	for _, s := range sessions {
		if s.enqueue(frame) {
			sent++
		}
	}
	return sent
}

func (h *hub) all() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		res = append(res, s)
	}
	return res
}

func (h *hub) numSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *hub) numRooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
