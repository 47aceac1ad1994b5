package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shineum/smtp-mailer-lite/internal/mailer"
	"github.com/shineum/smtp-mailer-lite/internal/person"
	"github.com/shineum/smtp-mailer-lite/internal/template"
)

var errNotDelivered = errors.New("message was not delivered")

type sendOptions struct {
	to          []string
	toNames     []string
	template    string
	subject     string
	text        string
	html        string
	attach      []string
	attachNames []string
}

func newSendCommand(rt *runtimeState) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message to one or more recipients",
		Example: `  mailer send --config mailer.yaml --to bob@example.com --to-name Bob --template welcome.yaml
  mailer send --to bob@example.com --subject Hi --text Hello --attach report.pdf --attach-name Report.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipients, err := opts.recipients()
			if err != nil {
				return err
			}
			tpl, err := opts.loadTemplate()
			if err != nil {
				return err
			}

			m, err := newMailer(cmd.Context(), rt.cfg, rt.out, mailer.WithLogger(rt.logger))
			if err != nil {
				return err
			}

			ok, err := m.Send(cmd.Context(), recipients, tpl)
			if err != nil {
				return err
			}
			if !ok {
				return errNotDelivered
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d recipient(s) via %s\n", len(recipients), m.Transport().Name())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.to, "to", nil, "recipient address (repeatable)")
	cmd.Flags().StringArrayVar(&opts.toNames, "to-name", nil, "display name for the --to at the same position (repeatable)")
	cmd.Flags().StringVar(&opts.template, "template", "", "path to a YAML template file")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&opts.text, "text", "", "plaintext body")
	cmd.Flags().StringVar(&opts.html, "html", "", "HTML body")
	cmd.Flags().StringArrayVar(&opts.attach, "attach", nil, "path of a file to attach (repeatable)")
	cmd.Flags().StringArrayVar(&opts.attachNames, "attach-name", nil, "display name for the --attach at the same position (repeatable)")
	_ = cmd.MarkFlagRequired("to")
	for _, f := range []string{"subject", "text", "html", "attach", "attach-name"} {
		cmd.MarkFlagsMutuallyExclusive("template", f)
	}

	return cmd
}

func (o *sendOptions) recipients() (person.Recipients, error) {
	if len(o.toNames) > len(o.to) {
		return nil, fmt.Errorf("got %d --to-name values for %d --to addresses", len(o.toNames), len(o.to))
	}

	recipients := make(person.Recipients, 0, len(o.to))
	for i, addr := range o.to {
		var name string
		if i < len(o.toNames) {
			name = o.toNames[i]
		}
		r, err := person.NewRecipient(addr, name)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

func (o *sendOptions) loadTemplate() (template.Template, error) {
	if o.template != "" {
		return template.Load(o.template)
	}
	if o.subject == "" {
		return nil, errors.New("either --template or --subject is required")
	}

	tpl := &template.Static{
		SubjectText: o.subject,
		HTML:        o.html,
		Text:        o.text,
	}
	if len(o.attachNames) > len(o.attach) {
		return nil, fmt.Errorf("got %d --attach-name values for %d --attach paths", len(o.attachNames), len(o.attach))
	}
	for i, path := range o.attach {
		att := template.Attachment{Path: path}
		if i < len(o.attachNames) {
			att.Name = o.attachNames[i]
		}
		tpl.Files = append(tpl.Files, att)
	}
	return tpl, nil
}
