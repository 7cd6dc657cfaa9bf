package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"insurance-agent/internal/app"
	"insurance-agent/internal/domain"
)

const passwordEnv = "INSURANCE_AGENT_STAFF_PASSWORD"

func newSubmissionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions",
		Short: "List recent verification submissions (staff only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			subs, err := a.Staff.Submissions(cmd.Context(), password)
			if err != nil {
				return err
			}
			return printSubmissions(cmd.OutOrStdout(), subs)
		},
	}
}

func staffPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return readPassword("Staff password")
}

func readPassword(label string) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	pw, err := p.Run()
	if err != nil {
		if errors.Is(quitOn(err), errQuit) {
			return "", errors.New("password entry cancelled")
		}
		return "", err
	}
	return pw, nil
}

func printSubmissions(out io.Writer, subs []domain.Submission) error {
	if len(subs) == 0 {
		_, err := fmt.Fprintln(out, "no submissions")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMITTED\tID\tPATIENT\tPROVIDER\tSTATUS\tPLAN")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SubmittedAt.Format("2006-01-02 15:04"),
			s.SubmissionID,
			s.Patient.Name,
			s.Patient.Provider,
			s.Result.Status,
			s.Result.PlanName,
		)
	}
	return tw.Flush()
}
