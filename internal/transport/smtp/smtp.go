// Package smtp implements a Transport that delivers over SMTP using
// gopkg.in/mail.v2.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"gopkg.in/mail.v2"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// Config holds the connection settings for a Transport.
type Config struct {
	Host     string
	Port     int
	Security config.Security
	Username string
	Password string

	// Timeout bounds dialing and the whole SMTP exchange. Zero keeps the
	// library default.
	Timeout time.Duration

	// TLSConfig overrides the TLS client configuration. When nil, the
	// server name is taken from Host.
	TLSConfig          *tls.Config
	InsecureSkipVerify bool
}

// Dialer is the part of *mail.Dialer the Transport uses.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Transport sends each message over a fresh SMTP connection.
type Transport struct {
	dialer func() Dialer
	host   string
}

// New creates a Transport from cfg.
func New(cfg Config) *Transport {
	return &Transport{
		dialer: func() Dialer { return newDialer(cfg) },
		host:   cfg.Host,
	}
}

// FromSettings creates a Transport for a validated mailer configuration.
// The SMTP login is the sender address.
func FromSettings(s config.Settings) *Transport {
	return New(Config{
		Host:               s.Host(),
		Port:               s.Port(),
		Security:           s.Security(),
		Username:           s.Username(),
		Password:           s.Password(),
		Timeout:            s.Timeout(),
		InsecureSkipVerify: s.InsecureSkipVerify(),
	})
}

// NewWithDialer creates a Transport with a custom dialer, used for testing.
func NewWithDialer(host string, d Dialer) *Transport {
	return &Transport{dialer: func() Dialer { return d }, host: host}
}

// newDialer builds the dialer for one send. Auth is left unset so mail.v2
// picks the mechanism from the server's AUTH list. The choice is stored on
// the dialer, so each send gets its own.
func newDialer(cfg Config) *mail.Dialer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.RetryFailure = false
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}

	switch cfg.Security {
	case config.SecurityTLS:
		d.SSL = true
	case config.SecurityStartTLS:
		d.SSL = false
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		d.SSL = false
		d.StartTLSPolicy = mail.NoStartTLS
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
	}
	if cfg.InsecureSkipVerify {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.InsecureSkipVerify = true
	}
	d.TLSConfig = tlsConfig

	return d
}

// Send renders msg and delivers it. The dial runs in its own goroutine so
// that ctx cancellation returns promptly; the connection itself is bounded
// by the configured timeout.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := msg.Message()
	d := t.dialer()

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp %s: %w", t.host, err)
		}
		return nil
	}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}
