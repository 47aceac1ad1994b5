package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/mailer"
	"github.com/shineum/smtp-mailer-lite/internal/transport"
	"github.com/shineum/smtp-mailer-lite/internal/transport/graph"
	"github.com/shineum/smtp-mailer-lite/internal/transport/ses"
	"github.com/shineum/smtp-mailer-lite/internal/transport/stdout"
)

var errUnknownTransport = errors.New("unknown transport")

// newMailer builds a Mailer for the configured transport. The SMTP account
// settings are validated for every transport since they define the sender.
func newMailer(ctx context.Context, cfg *config.Config, out io.Writer, opts ...mailer.Option) (*mailer.Mailer, error) {
	if cfg.Transport == "smtp" || cfg.Transport == "" {
		return mailer.NewSMTP(cfg.Mailer, opts...)
	}

	tr, err := selectTransport(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	return mailer.New(cfg.Mailer, tr, opts...)
}

// selectTransport chooses a non-SMTP delivery backend based on configuration.
func selectTransport(ctx context.Context, cfg *config.Config, out io.Writer) (transport.Transport, error) {
	switch cfg.Transport {
	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("SES transport selected but SES_REGION is not set")
		}
		tr, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return tr, nil

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, errors.New("Graph transport selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required")
		}
		return graph.New(ctx, graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
		}), nil

	case "stdout":
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("%w %q", errUnknownTransport, cfg.Transport)
	}
}
