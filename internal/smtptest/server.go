// Package smtptest provides an in-process SMTP server that records the
// messages it receives, for exercising SMTP transports end to end.
package smtptest

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/samber/lo"
)

// TLSMode selects how the server offers TLS.
type TLSMode int

const (
	// TLSOff never offers TLS.
	TLSOff TLSMode = iota
	// TLSStartTLS advertises STARTTLS on a plain listener.
	TLSStartTLS
	// TLSImplicit wraps the listener in TLS from the first byte.
	TLSImplicit
)

// Option configures a Server.
type Option func(*Server)

// WithAuth requires SMTP AUTH with the given account.
func WithAuth(username, password string) Option {
	return func(s *Server) {
		s.creds = credentials{username: username, password: password}
	}
}

// WithAuthMechanisms limits the AUTH mechanisms the server advertises and
// accepts. The default is PLAIN and LOGIN.
func WithAuthMechanisms(mechanisms ...string) Option {
	return func(s *Server) {
		s.mechanisms = lo.Map(mechanisms, func(m string, _ int) string {
			return strings.ToUpper(m)
		})
	}
}

// WithTLS sets the TLS mode. A self-signed certificate is generated.
func WithTLS(mode TLSMode) Option {
	return func(s *Server) {
		s.tlsMode = mode
	}
}

// WithRejectRecipients answers every RCPT TO with a permanent failure.
func WithRejectRecipients() Option {
	return func(s *Server) {
		s.rejectRcpt = true
	}
}

// Envelope is one message accepted by the server.
type Envelope struct {
	From string
	Rcpt []string
	Data []byte
	// TLS reports whether the message was received over an encrypted connection.
	TLS bool
}

// Parse parses the message data.
func (e Envelope) Parse() (*Message, error) {
	return Parse(e.Data)
}

// Server is an SMTP server bound to 127.0.0.1 on an ephemeral port.
type Server struct {
	creds      credentials
	mechanisms []string
	tlsMode    TLSMode
	rejectRcpt bool

	tlsConfig *tls.Config
	rootCAs   *x509.CertPool
	listener  net.Listener

	// wg tracks in-flight session goroutines.
	wg sync.WaitGroup

	mu       sync.Mutex
	received []Envelope
}

// NewServer starts a Server and stops it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{mechanisms: []string{"PLAIN", "LOGIN"}}
	for _, opt := range opts {
		opt(s)
	}

	if s.tlsMode != TLSOff {
		cert, pool, err := selfSignedCert()
		if err != nil {
			t.Fatalf("smtptest: %v", err)
		}
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		s.rootCAs = pool
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("smtptest: failed to listen: %v", err)
	}
	if s.tlsMode == TLSImplicit {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln

	go s.serve()
	t.Cleanup(s.Close)

	return s
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed.
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, s).handle()
		}()
	}
}

// Close stops accepting connections and waits for open sessions to end.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}

// Host returns the listening IP address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// ClientTLSConfig returns a client configuration that trusts the server
// certificate. It is nil when TLS is off.
func (s *Server) ClientTLSConfig() *tls.Config {
	if s.rootCAs == nil {
		return nil
	}
	return &tls.Config{
		ServerName: s.Host(),
		RootCAs:    s.rootCAs,
		MinVersion: tls.VersionTLS12,
	}
}

// Received returns the messages accepted so far.
func (s *Server) Received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.received...)
}

func (s *Server) record(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, env)
	slog.Debug("smtptest: message accepted", "from", env.From, "rcpt", len(env.Rcpt), "bytes", len(env.Data))
}
