// Package digest turns a calendar window and a page of articles into the
// ordered messages handed to a responder.
package digest

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pders01/fxdigest/internal/calendar"
	"github.com/pders01/fxdigest/internal/storage"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	calendarHeader = "Economic Calendar Events from %s to %s:\n"
	articlesHeader = "Latest news articles:\n"
	headerDate     = "2006-01-02"
)

type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Window is the forward date range the calendar block covers.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow returns the window starting at from and spanning days.
func NewWindow(from time.Time, days int) Window {
	return Window{From: from, To: from.AddDate(0, 0, days)}
}

// Assemble builds the message sequence. The calendar block is emitted only
// when events is non-empty; the articles block is always emitted, header
// only when there are no articles.
func Assemble(w Window, events []calendar.Event, articles []storage.Article) ([]Message, error) {
	messages := make([]Message, 0, 2)

	if len(events) > 0 {
		rendered, err := yaml.Marshal(events)
		if err != nil {
			return nil, fmt.Errorf("rendering calendar events: %w", err)
		}
		messages = append(messages, Message{
			Role:    RoleUser,
			Content: fmt.Sprintf(calendarHeader, w.From.Format(headerDate), w.To.Format(headerDate)) + string(rendered),
		})
	}

	lines := make([]string, 0, len(articles))
	for _, a := range articles {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Title, a.Content))
	}
	messages = append(messages, Message{
		Role:    RoleUser,
		Content: articlesHeader + strings.Join(lines, "\n"),
	})

	return messages, nil
}
