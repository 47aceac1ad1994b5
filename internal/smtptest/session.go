package smtptest

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout closes sessions whose client stopped talking.
const idleTimeout = 10 * time.Second

// maxMessageSize is advertised in the EHLO response.
const maxMessageSize = 10 * 1024 * 1024

// session is one client connection.
type session struct {
	server    *Server
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	state     int
	tlsActive bool

	// Current transaction
	mailFrom string
	rcptTo   []string
}

func newSession(conn net.Conn, server *Server) *session {
	return &session{
		server:    server,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		state:     stateConnected,
		tlsActive: server.tlsMode == TLSImplicit,
	}
}

// handle processes commands until the client quits or disconnects.
func (s *session) handle() {
	defer s.conn.Close()

	s.writeLine("220 %s ESMTP smtptest", s.server.Host())

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("smtptest: connection read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if done := s.handleCommand(cmd, arg); done {
			return
		}
	}
}

// handleCommand processes a single command and returns true if the session should end.
func (s *session) handleCommand(cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		s.handleDATA()
	case "RSET":
		s.resetTransaction()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.state = stateGreeted
	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.server.Host(), arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.server.Host(), arg)
	if s.server.tlsMode == TLSStartTLS && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	if s.server.creds.enabled() && len(s.server.mechanisms) > 0 {
		s.writeLine("250-AUTH %s", strings.Join(s.server.mechanisms, " "))
	}
	s.writeLine("250-SIZE %d", maxMessageSize)
	s.writeLine("250 OK")
}

func (s *session) handleSTARTTLS() {
	if s.server.tlsMode != TLSStartTLS {
		s.writeLine("454 TLS not available")
		return
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Debug("smtptest: TLS handshake failed", "error", err)
		return
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.state = stateConnected
}

func (s *session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.server.creds.enabled() {
		s.writeLine("503 AUTH not available")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")
	mechanism = strings.ToUpper(mechanism)
	if !lo.Contains(s.server.mechanisms, mechanism) {
		s.writeLine("504 Unrecognized authentication type")
		return
	}

	var err error
	switch mechanism {
	case "PLAIN":
		if initial == "" {
			s.writeLine("334")
			initial, err = s.readResponse()
		}
		if err == nil {
			err = s.server.creds.verifyPlain(initial)
		}
	case "LOGIN":
		var user, pass string
		s.writeLine("334 VXNlcm5hbWU6")
		user, err = s.readResponse()
		if err == nil {
			s.writeLine("334 UGFzc3dvcmQ6")
			pass, err = s.readResponse()
		}
		if err == nil {
			err = s.server.creds.verifyLogin(user, pass)
		}
	default:
		s.writeLine("504 Unrecognized authentication type")
		return
	}

	if err != nil {
		s.writeLine("535 Authentication failed")
		return
	}

	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

// readResponse reads one line of an AUTH exchange. "*" cancels it.
func (s *session) readResponse() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "*" {
		return "", errAuthFailed
	}
	return line, nil
}

func (s *session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.server.creds.enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	addr := extractAddress(arg[5:])
	if addr == "" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

func (s *session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	addr := extractAddress(arg[3:])
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	if s.server.rejectRcpt {
		s.writeLine("550 Mailbox unavailable")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the dot-terminated message and records it.
func (s *session) handleDATA() {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			slog.Debug("smtptest: error reading DATA", "error", err)
			return
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}

		// Dot-stuffing: lines starting with ".." have the leading dot removed
		if strings.HasPrefix(trimmed, "..") {
			line = line[1:]
		}

		data.WriteString(line)
	}

	s.server.record(Envelope{
		From: s.mailFrom,
		Rcpt: s.rcptTo,
		Data: []byte(data.String()),
		TLS:  s.tlsActive,
	})

	s.writeLine("250 OK message accepted")
	s.resetTransaction()
}

// resetTransaction clears the envelope without touching greeting or auth state.
func (s *session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	if s.server.creds.enabled() && s.state >= stateAuthOK {
		s.state = stateAuthOK
	} else if s.state >= stateGreeted {
		s.state = stateGreeted
	}
}

func (s *session) writeLine(format string, args ...any) {
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Debug("smtptest: failed to flush to client", "error", err)
	}
}

// parseCommand splits a command line into the upper-cased verb and its argument.
func parseCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(cmd), arg
}

// extractAddress returns the address from "<user@example.com> PARAMS" or a
// bare "user@example.com".
func extractAddress(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}

	addr, _, _ := strings.Cut(s, " ")
	return addr
}
