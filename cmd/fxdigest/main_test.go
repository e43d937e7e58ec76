package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/digest"
	"github.com/pders01/fxdigest/internal/llm"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = old
	return <-outC
}

func TestVersionCommand(t *testing.T) {
	out := captureStdout(t, func() { versionCmd.Run(nil, nil) })

	if !strings.Contains(out, "fxdigest dev") {
		t.Errorf("Expected version output to contain 'fxdigest dev', got: %s", out)
	}
	if !strings.Contains(out, "github.com/pders01/fxdigest") {
		t.Errorf("Expected version output to contain 'github.com/pders01/fxdigest', got: %s", out)
	}
}

func TestGenerateConfigCommand(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	configFile := filepath.Join(tmpDir, ".config", "fxdigest", "config.toml")
	headersFile := filepath.Join(tmpDir, ".config", "fxdigest", "headers.json")

	out := captureStdout(t, func() { configGenCmd.Run(nil, nil) })

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Errorf("Config file was not created at %s", configFile)
	}
	if _, err := os.Stat(headersFile); os.IsNotExist(err) {
		t.Errorf("Headers file was not created at %s", headersFile)
	}
	if !strings.Contains(out, "Generated default configuration at:") {
		t.Errorf("Expected output to contain 'Generated default configuration at:', got: %s", out)
	}
}

func TestExpandTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		input    string
		expected string
	}{
		{"~/test.db", filepath.Join(home, "test.db")},
		{"/tmp/test.db", "/tmp/test.db"},
		{"test.db", "test.db"},
	}
	for _, tt := range tests {
		if got := expandTilde(tt.input); got != tt.expected {
			t.Errorf("expandTilde(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func listing(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul data-test="news-list">`)
	for _, title := range titles {
		slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
		fmt.Fprintf(&b, `<li><a data-test="article-title-link" href="/news/forex-news/%s">%s</a></li>`, slug, title)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

// fakeSite serves listing pages 1..3, their articles and the calendar
// service.
type fakeSite struct {
	*httptest.Server
	mu       sync.Mutex
	requests map[string]int
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{requests: map[string]int{}}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.requests[r.URL.Path]++
		site.mu.Unlock()

		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte("home"))
		case "/news/forex-news":
			_, _ = w.Write([]byte(listing("Dollar gains")))
		case "/news/forex-news/2":
			_, _ = w.Write([]byte(`<html><body><ul data-test="news-list"></ul></body></html>`))
		case "/news/forex-news/3":
			_, _ = w.Write([]byte(listing("Euro slips", "Yen steady")))
		case "/calendar":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": `<tr><td class="theDay" id="theDay1760313600">Monday</td></tr>` +
					`<tr id="eventRowId_9"><td class="first left">08:30</td>` +
					`<td class="left flagCur"><span title="Euro Zone"></span> EUR</td>` +
					`<td class="sentiment" data-img_key="bull3"></td>` +
					`<td class="left event">ZEW Economic Sentiment</td></tr>`,
				"bind_scroll_handler": false,
			})
		default:
			if strings.HasPrefix(r.URL.Path, "/news/forex-news/") {
				slug := strings.TrimPrefix(r.URL.Path, "/news/forex-news/")
				fmt.Fprintf(w, `<html><body><div id="article"><p>Body of %s.</p></div></body></html>`, slug)
				return
			}
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(site.Close)
	return site
}

func (s *fakeSite) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func testApp(t *testing.T, site *fakeSite) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.TestConfig()
	cfg.Database.Path = filepath.Join(dir, "articles.db")
	cfg.Database.SearchIndex = filepath.Join(dir, "index.bleve")
	cfg.Site.BaseURL = site.URL + "/"
	cfg.Site.HeadersFile = ""
	cfg.Calendar.Endpoint = site.URL + "/calendar"

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

type fakeResponder struct {
	messages []digest.Message
}

func (f *fakeResponder) Respond(_ context.Context, messages []digest.Message) (string, error) {
	f.messages = messages
	return "# Briefing\n\nEUR under pressure.", nil
}

func TestRunCycle(t *testing.T) {
	site := newFakeSite(t)
	a := testApp(t, site)

	responder := &fakeResponder{}
	old := newResponder
	newResponder = func(context.Context, config.LLMConfig) (llm.Responder, error) { return responder, nil }
	t.Cleanup(func() { newResponder = old })

	var out bytes.Buffer
	require.NoError(t, a.runCycle(context.Background(), &out))

	assert.Contains(t, out.String(), "Briefing")
	require.Len(t, responder.messages, 2)
	assert.Contains(t, responder.messages[0].Content, "Economic Calendar Events from")
	assert.Contains(t, responder.messages[0].Content, "ZEW Economic Sentiment")
	assert.Equal(t, "Latest news articles:\n- Euro slips: Body of euro-slips.\n- Yen steady: Body of yen-steady.", responder.messages[1].Content)

	count, err := a.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunCycle_MissingAPIKey(t *testing.T) {
	site := newFakeSite(t)
	a := testApp(t, site)
	a.cfg.LLM.APIKey = ""

	err := a.runCycle(context.Background(), io.Discard)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	assert.Zero(t, site.count("/news/forex-news/3"), "nothing is fetched without a credential")
}

// flakyResponder fails its first call and cancels the watch on the next.
type flakyResponder struct {
	calls  int
	cancel context.CancelFunc
}

func (f *flakyResponder) Respond(context.Context, []digest.Message) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", errors.New("gemini API call failed: 503 unavailable")
	}
	f.cancel()
	return "recovered", nil
}

func TestWatch_SurvivesResponderFailure(t *testing.T) {
	site := newFakeSite(t)
	a := testApp(t, site)
	a.cfg.Pipeline.WatchInterval = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	responder := &flakyResponder{cancel: cancel}
	old := newResponder
	newResponder = func(context.Context, config.LLMConfig) (llm.Responder, error) { return responder, nil }
	t.Cleanup(func() { newResponder = old })

	var out bytes.Buffer
	require.NoError(t, a.watch(ctx, &out))
	assert.Equal(t, 2, responder.calls)
	assert.Contains(t, out.String(), "recovered")
}

func TestWatch_MissingAPIKeyStops(t *testing.T) {
	site := newFakeSite(t)
	a := testApp(t, site)
	a.cfg.Pipeline.WatchInterval = 20 * time.Millisecond
	a.cfg.LLM.APIKey = ""

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.watch(ctx, io.Discard)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	assert.NoError(t, ctx.Err(), "watch should stop before the deadline")
}

func TestPagesSearchAndRemove(t *testing.T) {
	site := newFakeSite(t)
	a := testApp(t, site)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, a.printPages(ctx, &out, 3))
	assert.Contains(t, out.String(), "Page 1 (1 articles)")
	assert.Contains(t, out.String(), "Page 2 (0 articles)")
	assert.Contains(t, out.String(), "Page 3 (2 articles)")
	assert.Equal(t, 1, site.count("/news/forex-news/euro-slips"))

	out.Reset()
	require.NoError(t, a.printSearch(ctx, &out, "euro", 10))
	assert.Contains(t, out.String(), "Euro slips")
	assert.NotContains(t, out.String(), "Dollar gains")

	out.Reset()
	require.NoError(t, a.removeArticle(ctx, &out, site.URL+"/news/forex-news/euro-slips#top"))
	assert.Contains(t, out.String(), "Removed")

	count, err := a.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = a.removeArticle(ctx, io.Discard, site.URL+"/news/forex-news/euro-slips")
	assert.Error(t, err)

	// A removed article is fetched again on the next pass.
	require.NoError(t, a.printPages(ctx, io.Discard, 3))
	assert.Equal(t, 2, site.count("/news/forex-news/euro-slips"))
}

func TestLoadUserAgents_DefaultFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	agents, err := loadUserAgents(config.DefaultHeadersFile())
	require.NoError(t, err)
	assert.NotEmpty(t, agents)

	_, err = loadUserAgents(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
