package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shineum/smtp-mailer-lite/internal/person"
)

var (
	// ErrConfig is wrapped by every configuration error.
	ErrConfig = errors.New("invalid mailer config")

	// ErrSMTPNotSet indicates that secure, host or port is missing.
	ErrSMTPNotSet = errors.New("SMTP config is not set")

	// ErrCredentialsNotProvided indicates that address or password is missing.
	ErrCredentialsNotProvided = errors.New("SMTP credentials are not provided")

	// ErrInvalidSecurity indicates an unknown secure mode.
	ErrInvalidSecurity = errors.New("unknown SMTP security mode")

	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("SMTP port out of range")
)

// Security is the transport security mode of the SMTP connection.
type Security string

const (
	// SecurityNone sends in clear text and never upgrades the connection.
	SecurityNone Security = "none"
	// SecurityStartTLS requires a STARTTLS upgrade after connecting.
	SecurityStartTLS Security = "starttls"
	// SecurityTLS connects over implicit TLS.
	SecurityTLS Security = "tls"
)

// ParseSecurity maps a configured secure value to a Security mode.
// "ssl" is accepted as an alias of "tls".
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return SecurityNone, nil
	case "starttls":
		return SecurityStartTLS, nil
	case "tls", "ssl":
		return SecurityTLS, nil
	default:
		return "", fmt.Errorf("%w: %w %q", ErrConfig, ErrInvalidSecurity, s)
	}
}

// Settings is a validated, immutable MailerConfig.
type Settings struct {
	host               string
	port               int
	security           Security
	password           string
	timeout            time.Duration
	insecureSkipVerify bool
	sender             person.Sender
	replyTo            person.Person
}

// Validate checks that every required key is present and that the sender
// and reply-to addresses are well formed.
func Validate(c MailerConfig) (Settings, error) {
	if c.Secure == "" || c.Host == "" || c.Port == 0 {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfig, ErrSMTPNotSet)
	}
	if c.Address == "" || c.Password == "" {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfig, ErrCredentialsNotProvided)
	}

	security, err := ParseSecurity(c.Secure)
	if err != nil {
		return Settings{}, err
	}
	if c.Port < 1 || c.Port > 65535 {
		return Settings{}, fmt.Errorf("%w: %w: %d", ErrConfig, ErrInvalidPort, c.Port)
	}

	sender, err := person.NewSender(c.Address, c.Username)
	if err != nil {
		return Settings{}, fmt.Errorf("sender: %w", err)
	}

	s := Settings{
		host:               c.Host,
		port:               c.Port,
		security:           security,
		password:           c.Password,
		timeout:            c.Timeout,
		insecureSkipVerify: c.InsecureSkipVerify,
		sender:             sender,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}

	if c.ReplyToAddress != "" {
		s.replyTo, err = person.New(c.ReplyToAddress, c.ReplyToName)
		if err != nil {
			return Settings{}, fmt.Errorf("reply-to: %w", err)
		}
	}

	return s, nil
}

// Host is the SMTP server host name.
func (s Settings) Host() string { return s.host }

// Port is the SMTP server port.
func (s Settings) Port() int { return s.port }

// Security is the connection security mode.
func (s Settings) Security() Security { return s.security }

// Timeout bounds one SMTP exchange.
func (s Settings) Timeout() time.Duration { return s.timeout }

// InsecureSkipVerify reports whether the server certificate is not verified.
func (s Settings) InsecureSkipVerify() bool { return s.insecureSkipVerify }

// Sender is the From contact of every message.
func (s Settings) Sender() person.Sender { return s.sender }

// Username is the SMTP login, which is the sender address.
func (s Settings) Username() string { return s.sender.Email() }

// Password is the SMTP credential.
func (s Settings) Password() string { return s.password }

// ReplyTo returns the reply-to contact and whether one is configured.
func (s Settings) ReplyTo() (person.Person, bool) {
	return s.replyTo, !s.replyTo.IsZero()
}
