package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const digestHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Subject}}</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }
    .container {
      max-width: 680px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      padding: 8px 24px 24px;
    }
    h1, h2, h3 { color: #1f2937; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #e5e7eb; padding: 4px 8px; }
  </style>
</head>
<body>
  <div class="container">
    {{.Body}}
  </div>
</body>
</html>`

// DigestRenderer turns a Markdown response into an email with an HTML part
// and the original Markdown as the plain-text fallback.
type DigestRenderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

func NewDigestRenderer() *DigestRenderer {
	return &DigestRenderer{
		tmpl: template.Must(template.New("digest").Parse(digestHTMLTemplate)),
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (r *DigestRenderer) Render(subject, markdown string) (Message, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &body); err != nil {
		return Message{}, fmt.Errorf("converting markdown: %w", err)
	}

	var page bytes.Buffer
	err := r.tmpl.Execute(&page, struct {
		Subject string
		Body    template.HTML
	}{
		Subject: subject,
		Body:    template.HTML(body.String()),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return Message{Subject: subject, Text: markdown, HTML: page.String()}, nil
}
