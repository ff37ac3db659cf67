package chat

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/LEONFROMWORK/chat/store"
)

var messageTemplate = template.Must(template.New("message").Parse(
	`<div class="message" id="message-{{.ID}}" data-sender-id="{{.UserID}}">` +
		`<span class="message-author">{{.UserID}}</span> ` +
		`<time datetime="{{.CreatedAt.Format "2006-01-02T15:04:05Z07:00"}}">{{.CreatedAt.Format "15:04"}}</time>` +
		`<p class="message-content">{{.Content}}</p>` +
		`</div>`,
))

// Renderer turns stored messages into the opaque markup pushed to clients.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{tmpl: messageTemplate}
}

// Render escapes user content; the result is safe to insert verbatim.
func (r *Renderer) Render(msg store.Message) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("render message %d: %w", msg.ID, err)
	}
	return buf.String(), nil
}
