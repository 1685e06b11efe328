package notification

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasttemplate"
)

const (
	DefaultToastTitle   = "New Notification"
	DefaultToastMessage = "You have a new message"
)

// Toast is a short-lived user facing message.
type Toast struct {
	Title       string
	Description string
	ActionURL   string
	Duration    time.Duration
}

// ToastFor builds a toast, falling back to default texts when title or
// message are missing or empty.
func ToastFor(n Notification, duration time.Duration) Toast {
	t := Toast{
		Title:       DefaultToastTitle,
		Description: DefaultToastMessage,
		ActionURL:   stringValue(n.ActionURL),
		Duration:    duration,
	}
	if n.Title != nil && *n.Title != "" {
		t.Title = *n.Title
	}
	if n.Message != nil && *n.Message != "" {
		t.Description = *n.Message
	}
	return t
}

type Toaster interface {
	Show(t Toast)
}

// ConsoleToaster prints toasts rendered from a template with {{title}},
// {{message}} and {{action_url}} tags.
type ConsoleToaster struct {
	out      io.Writer
	template *fasttemplate.Template
}

func NewConsoleToaster(out io.Writer, template string) (*ConsoleToaster, error) {
	tpl, err := fasttemplate.NewTemplate(template, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("invalid toast template: %w", err)
	}
	return &ConsoleToaster{out: out, template: tpl}, nil
}

func (c *ConsoleToaster) Render(t Toast) string {
	return c.template.ExecuteString(map[string]any{
		"title":      t.Title,
		"message":    t.Description,
		"action_url": t.ActionURL,
	})
}

func (c *ConsoleToaster) Show(t Toast) {
	line := c.Render(t)
	if _, err := fmt.Fprintln(c.out, line); err != nil {
		log.Warn().Err(err).Msg("error writing toast")
	}
	log.Debug().Str("title", t.Title).Str("duration", t.Duration.String()).Msg("toast shown")
}
