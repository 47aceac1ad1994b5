package email

import (
	"io"
	"time"

	"gopkg.in/mail.v2"
)

// Message renders e as a mail.v2 message. Plaintext is the first part; in
// HTML mode the HTML body follows it as the preferred alternative.
func (e *Email) Message() *mail.Message {
	m := mail.NewMessage(mail.SetCharset(Charset), mail.SetEncoding(mail.QuotedPrintable))

	m.SetAddressHeader("From", e.From.Email(), e.From.Name())

	if len(e.ReplyTo) > 0 {
		replyTo := make([]string, 0, len(e.ReplyTo))
		for _, p := range e.ReplyTo {
			replyTo = append(replyTo, m.FormatAddress(p.Email(), p.Name()))
		}
		m.SetHeader("Reply-To", replyTo...)
	}

	to := make([]string, 0, len(e.To))
	for _, r := range e.To {
		to = append(to, m.FormatAddress(r.Email(), r.Name()))
	}
	m.SetHeader("To", to...)

	m.SetHeader("Subject", e.Subject)
	m.SetDateHeader("Date", time.Now())
	if e.MessageID != "" {
		m.SetHeader("Message-ID", e.MessageID)
	}

	switch {
	case e.IsHTML() && e.TextBody != "":
		m.SetBody("text/plain", e.TextBody)
		m.AddAlternative("text/html", e.HTMLBody)
	case e.IsHTML():
		m.SetBody("text/html", e.HTMLBody)
	default:
		m.SetBody("text/plain", e.TextBody)
	}

	for _, att := range e.Attachments {
		m.Attach(att.Filename,
			mail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}),
			mail.SetCopyFunc(copyContent(att.Content)),
		)
	}

	return m
}

// WriteTo writes e as a raw RFC 5322 message.
func (e *Email) WriteTo(w io.Writer) (int64, error) {
	return e.Message().WriteTo(w)
}

func copyContent(content []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	}
}
