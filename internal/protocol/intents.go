package protocol

// ContentType of a chat message.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type SendMessage struct {
	ChatID      string         `json:"chatId"`
	Content     string         `json:"content"`
	ContentType ContentType    `json:"contentType"`
	Metadata    map[string]any `json:"metadata"`
}

type MarkRead struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

type Typing struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
	// UserID is filled by the server when relaying typing state to room members.
	UserID string `json:"userId,omitempty"`
}

// SendNotification is an ad-hoc push used for testing and direct notifications.
// Payload is forwarded as the new_notification data.
type SendNotification struct {
	UserID    string `json:"userId,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	ActionURL string `json:"action_url,omitempty"`
}

// ChatMessage is the data of a new_message event.
type ChatMessage struct {
	ID          string         `json:"_id"`
	ChatID      string         `json:"chatId"`
	SenderID    string         `json:"senderId"`
	Content     string         `json:"content"`
	ContentType ContentType    `json:"contentType"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ReadBy      []string       `json:"readBy,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// MessagesRead is the data of a messages_read event.
type MessagesRead struct {
	ChatID     string   `json:"chatId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}
