package notify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/pders01/fxdigest/internal/config"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func enabledConfig() config.EmailConfig {
	return config.EmailConfig{
		SMTPServer: "smtp.example.org",
		SMTPPort:   587,
		SMTPUser:   "bot@example.org",
		SMTPPass:   "secret",
		To:         "trader@example.org",
	}
}

func TestSend_Disabled(t *testing.T) {
	d := &recordingDialer{}
	s := &EmailSender{cfg: config.EmailConfig{}, dialer: d}

	require.NoError(t, s.Send(Message{Subject: "x", Text: "y"}))
	assert.False(t, s.Enabled())
	assert.Empty(t, d.sent)
}

func TestSend_PlainAndHTML(t *testing.T) {
	d := &recordingDialer{}
	s := &EmailSender{cfg: enabledConfig(), dialer: d}

	require.NoError(t, s.Send(Message{Subject: "FX digest", Text: "plain body", HTML: "<h1>html body</h1>"}))
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"bot@example.org"}, m.GetHeader("From"), "falls back to smtp user")
	assert.Equal(t, []string{"trader@example.org"}, m.GetHeader("To"))
	assert.Equal(t, []string{"FX digest"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "plain body")
	assert.Contains(t, buf.String(), "html body")
	assert.Contains(t, buf.String(), "multipart/alternative")
}

func TestSend_ExplicitFrom(t *testing.T) {
	cfg := enabledConfig()
	cfg.From = "digest@example.org"
	d := &recordingDialer{}
	s := &EmailSender{cfg: cfg, dialer: d}

	require.NoError(t, s.Send(Message{Subject: "s", Text: "t"}))
	assert.Equal(t, []string{"digest@example.org"}, d.sent[0].GetHeader("From"))
}

func TestSend_Error(t *testing.T) {
	boom := errors.New("connection refused")
	s := &EmailSender{cfg: enabledConfig(), dialer: &recordingDialer{err: boom}}

	err := s.Send(Message{Subject: "s", Text: "t"})
	assert.ErrorIs(t, err, boom)
}

func TestNewEmailSender(t *testing.T) {
	s := NewEmailSender(enabledConfig())
	assert.True(t, s.Enabled())
	d, ok := s.dialer.(*gomail.Dialer)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d.Timeout)
	assert.Equal(t, "smtp.example.org", d.Host)
}

func TestDigestSubject(t *testing.T) {
	assert.Equal(t, "FX digest 2025-10-13 09:30", DigestSubject(time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)))
}

func TestDigestRenderer(t *testing.T) {
	msg, err := NewDigestRenderer().Render("FX digest", "## Calendar\n\n- **USD** retail sales <b>\n")
	require.NoError(t, err)

	assert.Equal(t, "FX digest", msg.Subject)
	assert.Equal(t, "## Calendar\n\n- **USD** retail sales <b>\n", msg.Text)
	assert.Contains(t, msg.HTML, "<title>FX digest</title>")
	assert.Contains(t, msg.HTML, "<h2>Calendar</h2>")
	assert.Contains(t, msg.HTML, "<strong>USD</strong>")
	assert.NotContains(t, msg.HTML, "<b>", "raw html is not passed through")
}
