// Package transport defines the interface for mail delivery backends.
package transport

import (
	"context"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// Transport delivers fully built messages. Implementations hold only
// connection settings; everything about a message arrives with it, so a
// Transport carries no state from one Send to the next.
type Transport interface {
	// Send delivers msg, blocking until the backend accepts or rejects it.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this transport.
	Name() string
}
