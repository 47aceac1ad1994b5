package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
	"github.com/shineum/smtp-mailer-lite/internal/smtptest"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func testEmail(t *testing.T) *email.Email {
	t.Helper()

	from, err := person.NewSender("sender@example.com", "Acme")
	require.NoError(t, err)
	to, err := person.NewRecipient("to@example.com", "")
	require.NoError(t, err)

	return &email.Email{
		MessageID: "<id-1@example.com>",
		From:      from,
		To:        person.Recipients{to},
		Subject:   "Test Subject",
		TextBody:  "Hello, World!",
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ses", NewWithClient(&mockSESClient{}).Name())
}

func TestSend_SimpleTextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	require.NoError(t, tr.Send(context.Background(), testEmail(t)))
	require.Equal(t, 1, mock.callCount)

	input := mock.lastInput
	require.NotNil(t, input.Content.Simple)
	assert.Nil(t, input.Content.Raw)
	assert.Equal(t, `"Acme" <sender@example.com>`, aws.ToString(input.FromEmailAddress))
	assert.Equal(t, []string{"<to@example.com>"}, input.Destination.ToAddresses)
	assert.Empty(t, input.ReplyToAddresses)
	assert.Equal(t, "Test Subject", aws.ToString(input.Content.Simple.Subject.Data))
	assert.Equal(t, "UTF-8", aws.ToString(input.Content.Simple.Subject.Charset))
	assert.Equal(t, "Hello, World!", aws.ToString(input.Content.Simple.Body.Text.Data))
	assert.Nil(t, input.Content.Simple.Body.Html)
}

func TestSend_HTMLEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	msg := testEmail(t)
	msg.HTMLBody = "<h1>Hello</h1>"

	require.NoError(t, tr.Send(context.Background(), msg))

	body := mock.lastInput.Content.Simple.Body
	require.NotNil(t, body.Html)
	assert.Equal(t, "<h1>Hello</h1>", aws.ToString(body.Html.Data))
	assert.Equal(t, "UTF-8", aws.ToString(body.Html.Charset))
	assert.Equal(t, "Hello, World!", aws.ToString(body.Text.Data))
}

func TestSend_RecipientsAndReplyTo(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	bob, err := person.NewRecipient("bob@example.com", "Bob")
	require.NoError(t, err)
	help, err := person.New("help@example.com", "Helpdesk")
	require.NoError(t, err)

	msg := testEmail(t)
	msg.To = append(msg.To, bob)
	msg.ReplyTo = []person.Person{help}

	require.NoError(t, tr.Send(context.Background(), msg))

	input := mock.lastInput
	assert.Equal(t, []string{"<to@example.com>", `"Bob" <bob@example.com>`}, input.Destination.ToAddresses)
	assert.Equal(t, []string{`"Helpdesk" <help@example.com>`}, input.ReplyToAddresses)
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := NewWithClient(mock)

	help, err := person.New("help@example.com", "")
	require.NoError(t, err)

	msg := testEmail(t)
	msg.ReplyTo = []person.Person{help}
	msg.Attachments = []email.Attachment{{
		Filename:    "test.txt",
		ContentType: "text/plain",
		Content:     []byte("file content"),
	}}

	require.NoError(t, tr.Send(context.Background(), msg))

	input := mock.lastInput
	require.NotNil(t, input.Content.Raw)
	assert.Nil(t, input.Content.Simple)
	assert.Equal(t, []string{"<to@example.com>"}, input.Destination.ToAddresses)

	parsed, err := smtptest.Parse(input.Content.Raw.Data)
	require.NoError(t, err)
	assert.Equal(t, "Test Subject", parsed.Subject)
	assert.Equal(t, "<id-1@example.com>", parsed.MessageID)
	require.Len(t, parsed.ReplyTo, 1)
	assert.Equal(t, "help@example.com", parsed.ReplyTo[0].Address)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "test.txt", parsed.Attachments[0].Filename)
	assert.Equal(t, "file content", string(parsed.Attachments[0].Content))
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("MessageRejected: Email address is not verified")
	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, apiErr
		},
	}
	tr := NewWithClient(mock)

	err := tr.Send(context.Background(), testEmail(t))
	require.ErrorIs(t, err, apiErr)
	assert.Contains(t, err.Error(), "SES SendEmail")
	assert.Equal(t, 1, mock.callCount, "failed sends are not retried")
}

func TestSend_PassesContext(t *testing.T) {
	t.Parallel()

	type key struct{}
	var got any
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, _ *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			got = ctx.Value(key{})
			return &sesv2.SendEmailOutput{}, nil
		},
	}
	tr := NewWithClient(mock)

	ctx := context.WithValue(context.Background(), key{}, "v")
	require.NoError(t, tr.Send(ctx, testEmail(t)))
	assert.Equal(t, "v", got)
}
