package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fxdigest/internal/calendar"
	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/storage"
)

var testNow = time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func sampleEvents() []calendar.Event {
	high := calendar.High
	return []calendar.Event{{
		ID:         "501",
		Date:       "13/10/2025",
		Time:       "08:30",
		Zone:       "united states",
		Currency:   strPtr("USD"),
		Importance: &high,
		Event:      "Retail Sales (MoM)",
		Forecast:   strPtr("0.4%"),
	}}
}

func TestAssemble_CalendarAndEmptyArticles(t *testing.T) {
	msgs, err := Assemble(NewWindow(testNow, 5), sampleEvents(), nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	cal := msgs[0]
	assert.Equal(t, RoleUser, cal.Role)
	assert.True(t, strings.HasPrefix(cal.Content, "Economic Calendar Events from 2025-10-13 to 2025-10-18:\n"))
	assert.Contains(t, cal.Content, "event: Retail Sales (MoM)")
	assert.Contains(t, cal.Content, "importance: high")
	assert.NotContains(t, cal.Content, "actual:", "nil fields are omitted")

	assert.Equal(t, Message{Role: RoleUser, Content: "Latest news articles:\n"}, msgs[1])
}

func TestAssemble_NoEventsNoCalendarBlock(t *testing.T) {
	articles := []storage.Article{
		{Title: "EUR/USD slips", Content: "The euro fell."},
		{Title: "Yen steady", Content: ""},
	}

	msgs, err := Assemble(NewWindow(testNow, 5), nil, articles)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Latest news articles:\n- EUR/USD slips: The euro fell.\n- Yen steady: ", msgs[0].Content)
}

type stubEvents struct {
	from, to time.Time
	events   []calendar.Event
	err      error
	deadline bool
}

func (s *stubEvents) Events(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	s.from, s.to = from, to
	_, s.deadline = ctx.Deadline()
	return s.events, s.err
}

type stubArticles struct {
	page     int
	articles []storage.Article
	err      error
}

func (s *stubArticles) FetchPage(_ context.Context, page int) ([]storage.Article, error) {
	s.page = page
	return s.articles, s.err
}

func TestBuilder_Build(t *testing.T) {
	events := &stubEvents{events: sampleEvents()}
	articles := &stubArticles{articles: []storage.Article{{Title: "t", Content: "c"}}}

	b, err := NewBuilder(events, articles, BuilderOptions{
		WindowDays: 5,
		Page:       3,
		Timeout:    time.Minute,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	msgs, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Latest news articles:\n- t: c", msgs[1].Content)

	assert.Equal(t, testNow, events.from)
	assert.Equal(t, testNow.AddDate(0, 0, 5), events.to)
	assert.True(t, events.deadline, "cycle timeout applied")
	assert.Equal(t, 3, articles.page)
}

func TestBuilder_PropagatesStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	b, err := NewBuilder(&stubEvents{}, &stubArticles{err: boom}, BuilderOptions{})
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestBuilder_Defaults(t *testing.T) {
	articles := &stubArticles{}
	b, err := NewBuilder(&stubEvents{}, articles, BuilderOptions{})
	require.NoError(t, err)

	msgs, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 3, articles.page)

	_, err = NewBuilder(nil, articles, BuilderOptions{})
	assert.Error(t, err)
}

func TestBuilderOptionsFromConfig(t *testing.T) {
	opts := BuilderOptionsFromConfig(config.PipelineConfig{
		CalendarWindowDays: 7,
		DigestPage:         2,
		CycleTimeout:       time.Minute,
	})
	assert.Equal(t, 7, opts.WindowDays)
	assert.Equal(t, 2, opts.Page)
	assert.Equal(t, time.Minute, opts.Timeout)
}
