package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenSource {
	return func() (string, error) {
		return token, nil
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := New(server.URL+"/", append([]Option{WithTokenSource(staticToken("tok"))}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewInvalidURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.ErrorIs(t, err, ErrInvalidURL)
	_, err = New("://bad")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestUserChats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/users/u%201/chats", r.URL.EscapedPath())
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"_id":"c1","participants":["u 1","u2"],"lastMessage":{"_id":"m1","chatId":"c1","content":"hi"}}]`))
	})
	chats, err := c.UserChats(context.Background(), "u 1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "c1", chats[0].ID)
	require.Equal(t, "hi", chats[0].LastMessage.Content)
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chats/c1", r.URL.Path)
		_, _ = w.Write([]byte(`{"_id":"c1","name":"Flat 3"}`))
	})
	chat, err := c.Chat(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "Flat 3", chat.Name)
}

func TestMessagesPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chats/c1/messages", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"_id":"m1"},{"_id":"m2"}]`))
	})
	messages, err := c.Messages(context.Background(), "c1", 2, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"content":"hello","contentType":"text"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"m1","chatId":"c1","content":"hello","contentType":"text"}`))
	})
	msg, err := c.SendMessage(context.Background(), "c1", "hello", "")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, protocol.ContentTypeText, msg.ContentType)
}

func TestMarkRead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/chats/c1/read", r.URL.Path)
		var req markReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"m1"}, req.MessageIDs)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.MarkRead(context.Background(), "c1", []string{"m1"}))
}

func TestNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"_id":"n1","title":"T","is_read":true},{"_id":"n2"}]`))
	})
	items, err := c.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.True(t, items[0].IsRead)
	require.Equal(t, "T", *items[0].Title)
	require.Nil(t, items[1].Title)
	require.JSONEq(t, `{"_id":"n2"}`, string(items[1].Raw))
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not a participant"}`))
	})
	_, err := c.Chat(context.Background(), "c1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "not a participant", apiErr.Message)
}

func TestNoToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Fail(t, "request must not be sent")
	}, WithTokenSource(staticToken("")))
	_, err := c.Notifications(context.Background())
	require.ErrorIs(t, err, ErrNoToken)

	tokenErr := errors.New("store broken")
	c.token = func() (string, error) { return "", tokenErr }
	_, err = c.Notifications(context.Background())
	require.ErrorIs(t, err, tokenErr)
}

func TestContextCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Notifications(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notifications", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"userId":"u2","title":"Rent due"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"n1","title":"Rent due","is_read":false}`))
	})
	n, err := c.Notify(context.Background(), protocol.SendNotification{UserID: "u2", Title: "Rent due"})
	require.NoError(t, err)
	require.Equal(t, "n1", n.ID)
	require.Equal(t, "Rent due", *n.Title)
	require.Nil(t, n.Message)
}
