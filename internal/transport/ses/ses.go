// Package ses implements a Transport that sends emails via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/samber/lo"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends emails via the AWS SES v2 API.
type Transport struct {
	client SendEmailAPI
}

// New creates a Transport. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Transport{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *Transport {
	return &Transport{client: client}
}

// Send delivers msg with a single SendEmail call. Messages with attachments
// go out as raw MIME; everything else uses the SES simple format.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	var input *sesv2.SendEmailInput

	if len(msg.Attachments) > 0 {
		raw, err := buildRawInput(msg)
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
		input = raw
	} else {
		input = buildSimpleInput(msg)
	}

	if _, err := t.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

func buildSimpleInput(msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = content(msg.TextBody)
	}
	if msg.IsHTML() {
		body.Html = content(msg.HTMLBody)
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.Address()),
		ReplyToAddresses: replyTo(msg.ReplyTo),
		Destination: &types.Destination{
			ToAddresses: recipients(msg.To),
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: content(msg.Subject),
				Body:    body,
			},
		},
	}
}

// buildRawInput renders the full MIME message. Reply-To travels in the
// message headers, so only the envelope addresses are set on the input.
func buildRawInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, err
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.Address()),
		Destination: &types.Destination{
			ToAddresses: recipients(msg.To),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: buf.Bytes()},
		},
	}, nil
}

func content(s string) *types.Content {
	return &types.Content{
		Data:    aws.String(s),
		Charset: aws.String(email.Charset),
	}
}

func recipients(rs person.Recipients) []string {
	return lo.Map(rs, func(r person.Recipient, _ int) string {
		return r.Address()
	})
}

func replyTo(ps []person.Person) []string {
	if len(ps) == 0 {
		return nil
	}
	return lo.Map(ps, func(p person.Person, _ int) string {
		return p.Address()
	})
}
