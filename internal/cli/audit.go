package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"insurance-agent/internal/app"
	"insurance-agent/internal/domain"
)

func newAuditCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Show the access audit trail of a session (staff only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("building app: %w", err)
			}
			defer a.Close()

			password, err := staffPassword()
			if err != nil {
				return err
			}
			events, err := a.Staff.AuditTrail(cmd.Context(), password, args[0])
			if err != nil {
				return err
			}
			return printTrail(cmd.OutOrStdout(), args[0], events)
		},
	}
}

func printTrail(out io.Writer, sessionID string, events []domain.AuditEvent) error {
	if len(events) == 0 {
		_, err := fmt.Fprintf(out, "no audit events for session %s\n", sessionID)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tSTEP\tEVENT")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.At.UTC().Format("2006-01-02 15:04:05"),
			ev.Action,
			ev.Step,
			ev.EventID,
		)
	}
	return tw.Flush()
}
