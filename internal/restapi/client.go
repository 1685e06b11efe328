// Package restapi is a client of the backend HTTP API used for catch-up reads
// and as a fallback when realtime delivery is not wanted.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/colivhub/colivrt/internal/build"
	"github.com/colivhub/colivrt/internal/notification"
	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/valyala/fasttemplate"
)

const (
	_defaultTimeout   = 10 * time.Second
	_maxResponseSize  = 4 << 20
	_defaultPageLimit = 50

	userChatsPath     = "/api/users/{{userId}}/chats"
	chatPath          = "/api/chats/{{chatId}}"
	chatMessagesPath  = "/api/chats/{{chatId}}/messages"
	chatReadPath      = "/api/chats/{{chatId}}/read"
	notificationsPath = "/api/notifications"
)

var (
	// ErrInvalidURL returned when base url has invalid format.
	ErrInvalidURL = errors.New("restapi: invalid url value or format")
	// ErrNoToken returned when the token source has no credential.
	ErrNoToken = errors.New("restapi: no credential")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("restapi: unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("restapi: status %d: %s", e.StatusCode, e.Message)
}

// TokenSource returns the bearer credential for a request.
type TokenSource func() (string, error)

// Chat is a conversation room as returned by the backend.
type Chat struct {
	ID           string                `json:"_id"`
	Name         string                `json:"name,omitempty"`
	Participants []string              `json:"participants"`
	LastMessage  *protocol.ChatMessage `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// Client calls the backend API with bearer auth.
type Client struct {
	baseURL string
	client  *http.Client
	token   TokenSource
}

// New returns a new Client for base URL.
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint must have http:// or https:// scheme, got: %s", ErrInvalidURL, rawURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(rawURL, "/"),
		client:  &http.Client{Timeout: _defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) url(path string, vars map[string]any) string {
	return c.baseURL + fasttemplate.ExecuteStringStd(path, "{{", "}}", escapeVars(vars))
}

func escapeVars(vars map[string]any) map[string]any {
	escaped := make(map[string]any, len(vars))
	for k, v := range vars {
		escaped[k] = url.PathEscape(fmt.Sprint(v))
	}
	return escaped
}

func (c *Client) do(ctx context.Context, method string, u string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", build.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return err
		}
		if token == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: protocol.ErrorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// UserChats returns chats where user participates.
func (c *Client) UserChats(ctx context.Context, userID string) ([]Chat, error) {
	var chats []Chat
	err := c.do(ctx, http.MethodGet, c.url(userChatsPath, map[string]any{"userId": userID}), nil, &chats)
	return chats, err
}

// Chat returns room metadata.
func (c *Client) Chat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := c.do(ctx, http.MethodGet, c.url(chatPath, map[string]any{"chatId": chatID}), nil, &chat)
	return chat, err
}

// Messages returns a page of room messages, newest first. Pages start at 1.
func (c *Client) Messages(ctx context.Context, chatID string, page int, limit int) ([]protocol.ChatMessage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = _defaultPageLimit
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	u := c.url(chatMessagesPath, map[string]any{"chatId": chatID}) + "?" + q.Encode()
	var messages []protocol.ChatMessage
	err := c.do(ctx, http.MethodGet, u, nil, &messages)
	return messages, err
}

type sendMessageRequest struct {
	Content     string               `json:"content"`
	ContentType protocol.ContentType `json:"contentType"`
}

// SendMessage posts a message to a room.
func (c *Client) SendMessage(ctx context.Context, chatID string, content string, contentType protocol.ContentType) (protocol.ChatMessage, error) {
	if contentType == "" {
		contentType = protocol.ContentTypeText
	}
	var msg protocol.ChatMessage
	err := c.do(ctx, http.MethodPost, c.url(chatMessagesPath, map[string]any{"chatId": chatID}), sendMessageRequest{
		Content:     content,
		ContentType: contentType,
	}, &msg)
	return msg, err
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

// MarkRead marks room messages as read.
func (c *Client) MarkRead(ctx context.Context, chatID string, messageIDs []string) error {
	return c.do(ctx, http.MethodPut, c.url(chatReadPath, map[string]any{"chatId": chatID}), markReadRequest{MessageIDs: messageIDs}, nil)
}

// Notifications returns notifications of the authenticated user.
func (c *Client) Notifications(ctx context.Context) ([]notification.Notification, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.url(notificationsPath, nil), nil, &raw); err != nil {
		return nil, err
	}
	items := make([]notification.Notification, 0, len(raw))
	for _, r := range raw {
		n, err := notification.Parse(r)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}

// Notify pushes a notification to n.UserID, the caller when empty, and
// returns the stored notification.
func (c *Client) Notify(ctx context.Context, n protocol.SendNotification) (notification.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.url(notificationsPath, nil), n, &raw); err != nil {
		return notification.Notification{}, err
	}
	return notification.Parse(raw)
}
