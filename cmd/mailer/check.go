package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without sending anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newMailer(cmd.Context(), rt.cfg, rt.out)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sender: %s\n", m.Sender())
			if replyTo, ok := m.ReplyTo(); ok {
				fmt.Fprintf(out, "reply-to: %s\n", replyTo)
			}
			fmt.Fprintf(out, "transport: %s\n", m.Transport().Name())
			return nil
		},
	}
}
