// Package notification models user notifications pushed by the realtime server
// and keeps a deduplicated local list of them.
package notification

import (
	"encoding/json"
	"time"

	"github.com/colivhub/colivrt/internal/eventbus"

	"github.com/tidwall/gjson"
)

// NewTopic receives every notification bridged from the realtime connection.
var NewTopic = eventbus.NewTopic[Notification]("notification:new")

// Notification as pushed by the server. Optional fields are nil when absent.
type Notification struct {
	ID        string    `json:"_id"`
	Title     *string   `json:"title,omitempty"`
	Message   *string   `json:"message,omitempty"`
	ActionURL *string   `json:"action_url,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	IsRead    bool      `json:"is_read"`

	// Raw is the payload exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Timestamp accepts RFC3339 strings and epoch milliseconds. Anything else
// decodes to the zero time instead of failing the whole notification.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	r := gjson.ParseBytes(data)
	switch r.Type {
	case gjson.String:
		if v, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
			t.Time = v
		}
	case gjson.Number:
		t.Time = time.UnixMilli(r.Int()).UTC()
	}
	return nil
}

// Parse decodes a new_notification payload keeping the raw bytes.
func Parse(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, err
	}
	n.Raw = append(json.RawMessage(nil), data...)
	return n, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
