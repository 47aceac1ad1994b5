// Package graph implements a Transport that sends emails via the Microsoft
// Graph API using OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	tokenURLFormat  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope      = "https://graph.microsoft.com/.default"
	requestTimeout  = 30 * time.Second
)

// Config holds the application registration used to obtain tokens.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Transport posts messages to the sendMail endpoint of the sending user's
// mailbox. Tokens are cached and refreshed by the oauth2 client.
type Transport struct {
	graphURL   string
	httpClient *http.Client
}

// New creates a Transport. ctx is used for token requests and should
// outlive the Transport.
func New(ctx context.Context, cfg Config) *Transport {
	tokenURL := fmt.Sprintf(tokenURLFormat, url.PathEscape(cfg.TenantID))
	return newWithOverrides(ctx, cfg, defaultGraphURL, tokenURL, &http.Client{Timeout: requestTimeout})
}

// newWithOverrides creates a Transport with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(ctx context.Context, cfg Config, graphURL, tokenURL string, base *http.Client) *Transport {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout

	return &Transport{
		graphURL:   graphURL,
		httpClient: client,
	}
}

// Send delivers msg with a single sendMail request on behalf of msg.From.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", t.graphURL, url.PathEscape(msg.From.Email()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph sendMail: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	sendErr := &SendError{StatusCode: resp.StatusCode, Message: string(body)}
	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		sendErr.Code = graphErrResp.Error.Code
		sendErr.Message = graphErrResp.Error.Message
	}
	return sendErr
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "graph"
}

// SendError is a non-success response from the sendMail endpoint.
type SendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.StatusCode, e.Message)
}
