// Package stdout implements a Transport that prints emails instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
)

// Transport prints email messages in a human-readable format.
type Transport struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a Transport that writes to w.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Send prints msg. Only a failed write is reported as an error.
func (t *Transport) Send(_ context.Context, msg *email.Email) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "Message-ID: %s\n", msg.MessageID)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	if len(msg.ReplyTo) > 0 {
		fmt.Fprintf(&b, "Reply-To: %s\n", strings.Join(lo.Map(msg.ReplyTo, func(p person.Person, _ int) string {
			return p.String()
		}), ", "))
	}
	fmt.Fprintf(&b, "To: %s\n", strings.Join(lo.Map(msg.To, func(r person.Recipient, _ int) string {
		return r.String()
	}), ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	if msg.IsHTML() {
		b.WriteString("Format: html\n")
		b.WriteString("HTML:\n")
		b.WriteString(msg.HTMLBody + "\n")
	} else {
		b.WriteString("Format: text\n")
	}
	if msg.TextBody != "" {
		b.WriteString("Text:\n")
		b.WriteString(msg.TextBody + "\n")
	}

	if len(msg.Attachments) > 0 {
		attachments := lo.Map(msg.Attachments, func(att email.Attachment, _ int) string {
			return fmt.Sprintf("%s (%s, %s)", att.Filename, att.ContentType, formatSize(len(att.Content)))
		})
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString("========================================\n")

	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
