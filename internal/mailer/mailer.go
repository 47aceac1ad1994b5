// Package mailer sends templated messages through a configured transport.
//
// Configuration and argument problems are returned as errors. A failure
// while handing the message to the transport is not: it is logged once and
// reported by a false result, so callers must check both.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
	"github.com/shineum/smtp-mailer-lite/internal/template"
	"github.com/shineum/smtp-mailer-lite/internal/transport"
	"github.com/shineum/smtp-mailer-lite/internal/transport/smtp"
)

var (
	// ErrInvalidArgument is returned when Send gets no usable recipients
	// or no template.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAttachment is returned when an attachment cannot be read.
	ErrAttachment = errors.New("could not attach file")
)

// Option configures a Mailer.
type Option func(*Mailer)

// WithLogger sets the logger transport failures are written to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

// Mailer sends messages from one configured sender. It holds no per-message
// state, so Send may be called concurrently.
type Mailer struct {
	sender    person.Sender
	replyTo   []person.Person
	transport transport.Transport
	logger    *slog.Logger
}

// New validates cfg and returns a Mailer that delivers through tr.
func New(cfg config.MailerConfig, tr transport.Transport, opts ...Option) (*Mailer, error) {
	settings, err := config.Validate(cfg)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidArgument)
	}
	return newMailer(settings, tr, opts), nil
}

// NewSMTP validates cfg and returns a Mailer that delivers over SMTP with
// the configured host, security mode and credentials.
func NewSMTP(cfg config.MailerConfig, opts ...Option) (*Mailer, error) {
	settings, err := config.Validate(cfg)
	if err != nil {
		return nil, err
	}
	return newMailer(settings, smtp.FromSettings(settings), opts), nil
}

func newMailer(s config.Settings, tr transport.Transport, opts []Option) *Mailer {
	m := &Mailer{
		sender:    s.Sender(),
		transport: tr,
		logger:    slog.Default(),
	}
	if rt, ok := s.ReplyTo(); ok {
		m.replyTo = []person.Person{rt}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sender returns the address messages are sent from.
func (m *Mailer) Sender() person.Sender {
	return m.sender
}

// ReplyTo returns the configured reply-to contact, if any.
func (m *Mailer) ReplyTo() (person.Person, bool) {
	if len(m.replyTo) == 0 {
		return person.Person{}, false
	}
	return m.replyTo[0], true
}

// Transport returns the transport messages are delivered through.
func (m *Mailer) Transport() transport.Transport {
	return m.transport
}

// Send builds a message from tpl addressed to every recipient in to and
// hands it to the transport. It reports true once the transport accepts
// the message.
//
// Invalid recipients or a nil template fail with ErrInvalidArgument and an
// unreadable attachment with ErrAttachment; neither reaches the transport.
// A transport failure is logged and returns (false, nil).
func (m *Mailer) Send(ctx context.Context, to person.RecipientSet, tpl template.Template) (bool, error) {
	recipients, err := normalizeRecipients(to)
	if err != nil {
		return false, err
	}
	if tpl == nil {
		return false, fmt.Errorf("%w: template is nil", ErrInvalidArgument)
	}

	msg, err := m.build(recipients, tpl)
	if err != nil {
		return false, err
	}

	if err := m.transport.Send(ctx, msg); err != nil {
		m.logger.Error("failed to send email",
			"transport", m.transport.Name(),
			"message_id", msg.MessageID,
			"recipients", len(msg.To),
			"error", err,
		)
		return false, nil
	}

	m.logger.Debug("email sent",
		"transport", m.transport.Name(),
		"message_id", msg.MessageID,
		"recipients", len(msg.To),
		"attachments", len(msg.Attachments),
	)
	return true, nil
}

func normalizeRecipients(to person.RecipientSet) (person.Recipients, error) {
	if to == nil {
		return nil, fmt.Errorf("%w: no recipients", ErrInvalidArgument)
	}

	list := to.List()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrInvalidArgument)
	}

	recipients := make(person.Recipients, 0, len(list))
	for i, r := range list {
		if r.IsZero() {
			return nil, fmt.Errorf("%w: recipient %d has no address", ErrInvalidArgument, i)
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

// build assembles a new message. Attachments are read here so a missing
// file fails the send before anything is transmitted.
func (m *Mailer) build(to person.Recipients, tpl template.Template) (*email.Email, error) {
	msg := &email.Email{
		MessageID: email.NewMessageID(m.sender.Domain()),
		From:      m.sender,
		ReplyTo:   m.replyTo,
		To:        to,
		Subject:   tpl.Subject(),
		HTMLBody:  tpl.HTMLBody(),
		TextBody:  email.Wrap(tpl.PlaintextBody()),
	}

	for _, att := range tpl.Attachments() {
		content, err := os.ReadFile(att.Path)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrAttachment, att.Path, err)
		}
		name := att.DisplayName()
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    name,
			ContentType: email.ContentType(name, att.Path),
			Content:     content,
		})
	}

	return msg, nil
}
