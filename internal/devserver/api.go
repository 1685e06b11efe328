package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/colivhub/colivrt/internal/middleware"
	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/rs/zerolog/log"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	maxAPIBodySize   = 1 << 20
)

func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{userId}/chats", s.apiUserChats)
	mux.HandleFunc("GET /api/chats/{chatId}", s.apiChat)
	mux.HandleFunc("GET /api/chats/{chatId}/messages", s.apiMessages)
	mux.HandleFunc("POST /api/chats/{chatId}/messages", s.apiSendMessage)
	mux.HandleFunc("PUT /api/chats/{chatId}/read", s.apiMarkRead)
	mux.HandleFunc("GET /api/notifications", s.apiNotifications)
	mux.HandleFunc("POST /api/notifications", s.apiNotify)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("error encoding response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorReply{Message: msg})
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, errChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func readBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAPIBodySize))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func currentUser(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

func (s *Server) apiUserChats(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	if r.PathValue("userId") != userID {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}
	writeJSON(w, http.StatusOK, s.store.userChats(userID))
}

func (s *Server) apiChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.store.chat(r.PathValue("chatId"), currentUser(r))
	if err != nil {
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// pageParams parses page and limit query values. Page starts at 1.
func pageParams(r *http.Request) (int, int, error) {
	page, limit := 1, defaultPageLimit
	var err error
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	return page, min(limit, maxPageLimit), nil
}

func (s *Server) apiMessages(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	messages, err := s.store.messages(r.PathValue("chatId"), currentUser(r), page, limit)
	if err != nil {
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content     string               `json:"content"`
	ContentType protocol.ContentType `json:"contentType"`
}

func (s *Server) apiSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	chatID := r.PathValue("chatId")
	userID := currentUser(r)
	if _, err := s.store.chat(chatID, userID); err != nil && !errors.Is(err, errChatNotFound) {
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}
	msg := s.store.addMessage(chatID, userID, req.Content, req.ContentType, nil)
	s.publishMessage(msg)
	writeJSON(w, http.StatusCreated, msg)
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (s *Server) apiMarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	chatID := r.PathValue("chatId")
	userID := currentUser(r)
	if _, err := s.store.chat(chatID, userID); err != nil {
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}
	marked, err := s.store.markRead(chatID, userID, req.MessageIDs)
	if err != nil {
		writeError(w, storeErrorStatus(err), err.Error())
		return
	}
	if len(marked) > 0 {
		frame, _ := protocol.EncodeFrame(protocol.EventMessagesRead, protocol.MessagesRead{
			ChatID:     chatID,
			UserID:     userID,
			MessageIDs: marked,
		})
		s.hub.broadcast(chatID, frame, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.userNotifications(currentUser(r)))
}

// apiNotify pushes a notification to userId of the body, the caller by default.
func (s *Server) apiNotify(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAPIBodySize))
	if err != nil || !isJSONObject(data) {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	target := gjsonString(data, "userId")
	if target == "" {
		target = currentUser(r)
	}
	payload, err := stampNotification(data, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.notify(target, payload)
	writeJSON(w, http.StatusCreated, json.RawMessage(payload))
}
