/*
Package notify delivers a digest response by email.
*/
package notify

import (
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
)

// Message is a rendered email. HTML is optional.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// dialer is the part of *gomail.Dialer used here.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg    config.EmailConfig
	dialer dialer
}

func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.Timeout = 10 * time.Second
	return &EmailSender{cfg: cfg, dialer: d}
}

// Enabled reports whether Send will deliver anything.
func (s *EmailSender) Enabled() bool {
	return s.cfg.Enabled()
}

// Send is a no-op when SMTP is not configured.
func (s *EmailSender) Send(msg Message) error {
	if !s.Enabled() {
		return nil
	}

	m := s.build(msg)
	if err := s.dialer.DialAndSend(m); err != nil {
		debuglog.Errorf("email to %s failed (subject %q): %v", s.cfg.To, msg.Subject, err)
		return fmt.Errorf("sending email: %w", err)
	}

	debuglog.Infof("email sent: %s", msg.Subject)
	return nil
}

func (s *EmailSender) build(msg Message) *gomail.Message {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.SMTPUser
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", s.cfg.To)
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// DigestSubject names a digest sent at t.
func DigestSubject(t time.Time) string {
	return "FX digest " + t.Format("2006-01-02 15:04")
}
