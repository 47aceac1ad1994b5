// Package email defines the per-send message model handed to transports.
package email

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mitchellh/go-wordwrap"

	"github.com/shineum/smtp-mailer-lite/internal/person"
)

const (
	// Charset is used for every header and body part.
	Charset = "UTF-8"

	// WrapWidth is the column plaintext bodies are wrapped at.
	WrapWidth = 80
)

// Email is a single outgoing message. A new Email is built for every send,
// so transports never see state left over from a previous message.
type Email struct {
	MessageID   string
	From        person.Sender
	ReplyTo     []person.Person
	To          person.Recipients
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Attachment is a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// IsHTML reports whether the message carries an HTML body. Plaintext is
// always sent, as the only body or as the alternative to the HTML part.
func (e *Email) IsHTML() bool {
	return e.HTMLBody != ""
}

// NewMessageID returns a unique Message-ID for mail sent from domain.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Wrap breaks plaintext at WrapWidth columns on word boundaries.
func Wrap(text string) string {
	return wordwrap.WrapString(text, WrapWidth)
}

// ContentType guesses the MIME type of an attachment from its display name,
// then from its path, falling back to application/octet-stream.
func ContentType(name, path string) string {
	for _, candidate := range []string{name, path} {
		if ext := filepath.Ext(candidate); ext != "" {
			if ct := mime.TypeByExtension(ext); ct != "" {
				return ct
			}
		}
	}
	return "application/octet-stream"
}
