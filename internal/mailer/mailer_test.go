package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
	"github.com/shineum/smtp-mailer-lite/internal/template"
)

// recordingTransport records every message it is asked to send.
type recordingTransport struct {
	mu   sync.Mutex
	sent []*email.Email
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg *email.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingTransport) Name() string {
	return "recording"
}

func (r *recordingTransport) messages() []*email.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*email.Email(nil), r.sent...)
}

func validConfig() config.MailerConfig {
	return config.MailerConfig{
		Secure:   "tls",
		Host:     "smtp.example.com",
		Port:     587,
		Address:  "a@example.com",
		Password: "p",
		Username: "Acme",
	}
}

// logRecords decodes the JSON log lines written to buf.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func newTestMailer(t *testing.T, tr *recordingTransport) (*Mailer, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	m, err := New(validConfig(), tr, WithLogger(logger))
	require.NoError(t, err)
	return m, &buf
}

func recipient(t *testing.T, addr, name string) person.Recipient {
	t.Helper()
	r, err := person.NewRecipient(addr, name)
	require.NoError(t, err)
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ReplyToAddress = "help@example.com"
	cfg.ReplyToName = "Helpdesk"

	tr := &recordingTransport{}
	m, err := New(cfg, tr)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", m.Sender().Email())
	assert.Equal(t, "Acme", m.Sender().Name())
	rt, ok := m.ReplyTo()
	require.True(t, ok)
	assert.Equal(t, "help@example.com", rt.Email())
	assert.Equal(t, "Helpdesk", rt.Name())
	assert.Same(t, tr, m.Transport())
}

func TestNew_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*config.MailerConfig)
		want   error
	}{
		{"missing host", func(c *config.MailerConfig) { c.Host = "" }, config.ErrSMTPNotSet},
		{"missing port", func(c *config.MailerConfig) { c.Port = 0 }, config.ErrSMTPNotSet},
		{"missing secure", func(c *config.MailerConfig) { c.Secure = "" }, config.ErrSMTPNotSet},
		{"missing address", func(c *config.MailerConfig) { c.Address = "" }, config.ErrCredentialsNotProvided},
		{"missing password", func(c *config.MailerConfig) { c.Password = "" }, config.ErrCredentialsNotProvided},
		{"invalid sender", func(c *config.MailerConfig) { c.Address = "not-an-email" }, person.ErrInvalidEmail},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(&cfg)

			_, err := New(cfg, &recordingTransport{})
			require.ErrorIs(t, err, tt.want)

			_, err = NewSMTP(cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_NilTransport(t *testing.T) {
	t.Parallel()

	_, err := New(validConfig(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewSMTP(t *testing.T) {
	t.Parallel()

	m, err := NewSMTP(validConfig())
	require.NoError(t, err)
	assert.Equal(t, "smtp", m.Transport().Name())
	_, ok := m.ReplyTo()
	assert.False(t, ok)
}

func TestSend_PlaintextScenario(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, logs := newTestMailer(t, tr)

	tpl := &template.Static{SubjectText: "Hi", Text: "Hello"}

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", "Bob"), tpl)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := tr.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "b@example.com", msg.To[0].Email())
	assert.Equal(t, "Bob", msg.To[0].Name())
	assert.False(t, msg.IsHTML())
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, "Hello", msg.TextBody)
	assert.Empty(t, msg.HTMLBody)
	assert.Equal(t, "a@example.com", msg.From.Email())
	assert.Equal(t, "Acme", msg.From.Name())
	assert.Empty(t, msg.ReplyTo)
	assert.True(t, strings.HasSuffix(msg.MessageID, "@example.com>"))
	assert.Empty(t, logRecords(t, logs))
}

func TestSend_HTMLMode(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)

	tpl := &template.Static{SubjectText: "Hi", HTML: "<p>Hello</p>", Text: "Hello"}

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), tpl)
	require.NoError(t, err)
	require.True(t, ok)

	msg := tr.messages()[0]
	assert.True(t, msg.IsHTML())
	assert.Equal(t, "<p>Hello</p>", msg.HTMLBody)
	assert.Equal(t, "Hello", msg.TextBody)
}

func TestSend_WrapsPlaintext(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)

	long := strings.Repeat("lorem ipsum ", 20)
	tpl := &template.Static{SubjectText: "Hi", HTML: "<p>" + long + "</p>", Text: long}

	_, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), tpl)
	require.NoError(t, err)

	msg := tr.messages()[0]
	for _, line := range strings.Split(msg.TextBody, "\n") {
		assert.LessOrEqual(t, len(line), email.WrapWidth)
	}
	assert.Equal(t, "<p>"+long+"</p>", msg.HTMLBody)
}

func TestSend_SingleRecipientEqualsList(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)
	tpl := &template.Static{SubjectText: "Hi", Text: "Hello"}
	bob := recipient(t, "b@example.com", "Bob")

	ok1, err := m.Send(context.Background(), bob, tpl)
	require.NoError(t, err)
	ok2, err := m.Send(context.Background(), person.Recipients{bob}, tpl)
	require.NoError(t, err)

	assert.Equal(t, ok1, ok2)
	sent := tr.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].To, sent[1].To)
	assert.Equal(t, sent[0].Subject, sent[1].Subject)
	assert.Equal(t, sent[0].TextBody, sent[1].TextBody)
	assert.NotEqual(t, sent[0].MessageID, sent[1].MessageID)
}

func TestSend_MultipleRecipientsInOrder(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)

	to := person.Recipients{
		recipient(t, "b@example.com", "Bob"),
		recipient(t, "c@example.com", ""),
	}
	ok, err := m.Send(context.Background(), to, &template.Static{SubjectText: "Hi", Text: "Hello"})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"b@example.com", "c@example.com"}, tr.messages()[0].To.Emails())
}

func TestSend_InvalidArgument(t *testing.T) {
	t.Parallel()

	tpl := &template.Static{SubjectText: "Hi", Text: "Hello"}

	tests := []struct {
		name string
		to   person.RecipientSet
		tpl  template.Template
	}{
		{"nil recipients", nil, tpl},
		{"nil list", person.Recipients(nil), tpl},
		{"empty list", person.Recipients{}, tpl},
		{"zero recipient", person.Recipient{}, tpl},
		{"zero recipient in list", person.Recipients{{}}, tpl},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := &recordingTransport{}
			m, _ := newTestMailer(t, tr)

			ok, err := m.Send(context.Background(), tt.to, tt.tpl)
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.False(t, ok)
			assert.Empty(t, tr.messages())
		})
	}

	t.Run("nil template with valid recipient", func(t *testing.T) {
		t.Parallel()

		tr := &recordingTransport{}
		m, _ := newTestMailer(t, tr)

		ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), nil)
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.False(t, ok)
		assert.Empty(t, tr.messages())
	})
}

func TestSend_Attachments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))
	binPath := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(binPath, []byte{1, 2, 3}, 0o644))

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)

	tpl := &template.Static{
		SubjectText: "Hi",
		Text:        "Hello",
		Files: []template.Attachment{
			{Path: pdfPath, Name: "Report.pdf"},
			{Path: binPath},
		},
	}

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), tpl)
	require.NoError(t, err)
	require.True(t, ok)

	atts := tr.messages()[0].Attachments
	require.Len(t, atts, 2)
	assert.Equal(t, "Report.pdf", atts[0].Filename)
	assert.Equal(t, "application/pdf", atts[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), atts[0].Content)
	assert.Equal(t, "blob", atts[1].Filename)
	assert.Equal(t, "application/octet-stream", atts[1].ContentType)
	assert.Equal(t, []byte{1, 2, 3}, atts[1].Content)
}

func TestSend_AttachmentError(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, logs := newTestMailer(t, tr)

	tpl := &template.Static{
		SubjectText: "Hi",
		Text:        "Hello",
		Files:       []template.Attachment{{Path: filepath.Join(t.TempDir(), "missing.pdf"), Name: "Missing.pdf"}},
	}

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), tpl)
	require.ErrorIs(t, err, ErrAttachment)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, ok)
	assert.Empty(t, tr.messages(), "nothing is transmitted")
	assert.Empty(t, logRecords(t, logs))
}

func TestSend_TransportFailure(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{err: errors.New("535 authentication failed")}
	m, logs := newTestMailer(t, tr)

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), &template.Static{SubjectText: "Hi", Text: "Hello"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, tr.messages(), 1)

	records := logRecords(t, logs)
	require.Len(t, records, 1)
	assert.Equal(t, "ERROR", records[0]["level"])
	assert.Equal(t, "failed to send email", records[0]["msg"])
	assert.Equal(t, "recording", records[0]["transport"])
	assert.Equal(t, "535 authentication failed", records[0]["error"])
}

func TestSend_SuccessLogsAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m, err := New(validConfig(), &recordingTransport{}, WithLogger(logger))
	require.NoError(t, err)

	ok, err := m.Send(context.Background(), recipient(t, "b@example.com", ""), &template.Static{SubjectText: "Hi", Text: "Hello"})
	require.NoError(t, err)
	require.True(t, ok)

	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "DEBUG", records[0]["level"])
	assert.Equal(t, "email sent", records[0]["msg"])
}

func TestSend_ReplyTo(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ReplyToAddress = "help@example.com"

	tr := &recordingTransport{}
	m, err := New(cfg, tr)
	require.NoError(t, err)

	_, err = m.Send(context.Background(), recipient(t, "b@example.com", ""), &template.Static{SubjectText: "Hi", Text: "Hello"})
	require.NoError(t, err)

	msg := tr.messages()[0]
	require.Len(t, msg.ReplyTo, 1)
	assert.Equal(t, "help@example.com", msg.ReplyTo[0].Email())
	assert.False(t, msg.ReplyTo[0].HasName())
}

func TestSend_NoStateBetweenSends(t *testing.T) {
	t.Parallel()

	tr := &recordingTransport{}
	m, _ := newTestMailer(t, tr)

	const n = 20
	recipients := make([]person.Recipient, n)
	for i := 0; i < n; i++ {
		recipients[i] = recipient(t, fmt.Sprintf("user%d@example.com", i), "")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			to := recipients[i]
			tpl := &template.Static{SubjectText: fmt.Sprintf("subject %d", i), Text: "Hello"}
			ok, err := m.Send(context.Background(), to, tpl)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	sent := tr.messages()
	require.Len(t, sent, n)
	for _, msg := range sent {
		require.Len(t, msg.To, 1)
		var i int
		_, err := fmt.Sscanf(msg.Subject, "subject %d", &i)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("user%d@example.com", i), msg.To[0].Email())
	}
}
