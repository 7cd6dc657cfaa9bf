package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"insurance-agent/internal/app"
	"insurance-agent/internal/config"
	"insurance-agent/internal/domain"
	"insurance-agent/internal/usecase"
)

type conversation interface {
	Open(ctx context.Context, key string) (usecase.View, error)
	Send(ctx context.Context, key, text string) (usecase.View, error)
	Consent(ctx context.Context, key string, granted bool) (usecase.View, error)
}

// prompter reads visitor input. errQuit ends the chat.
type prompter interface {
	Ask(label string) (string, error)
	Choose(label string, items []string) (int, error)
}

var errQuit = errors.New("quit")

type terminalPrompter struct{}

func (terminalPrompter) Ask(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	out, err := p.Run()
	return out, quitOn(err)
}

func (terminalPrompter) Choose(label string, items []string) (int, error) {
	s := promptui.Select{Label: label, Items: items}
	i, _, err := s.Run()
	return i, quitOn(err)
}

func quitOn(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return errQuit
	}
	return err
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the verification assistant in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.SessionBackend = config.BackendMemory

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("building app: %w", err)
			}
			defer a.Close()

			return runChat(cmd.Context(), a.Engine, terminalPrompter{}, cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, conv conversation, p prompter, out io.Writer) error {
	key := uuid.NewString()
	v, err := conv.Open(ctx, key)
	if err != nil {
		return err
	}

	var sessionID string
	printed := 0
	for {
		if v.SessionID != sessionID {
			sessionID, printed = v.SessionID, 0
		}
		for _, m := range v.Messages[printed:] {
			if m.Sender == domain.SenderBot {
				fmt.Fprintf(out, "assistant> %s\n", m.Text)
			}
		}
		printed = len(v.Messages)

		if v.Step == domain.StepEnd {
			return nil
		}

		if v.Step == domain.StepConsent && !v.InputEnabled {
			i, err := p.Choose("Consent", []string{"I agree", "I do not agree"})
			if err != nil {
				return ignoreQuit(err)
			}
			v, err = conv.Consent(ctx, key, i == 0)
			if err != nil {
				return err
			}
			continue
		}

		text, err := p.Ask("you")
		if err != nil {
			return ignoreQuit(err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		next, err := conv.Send(ctx, key, text)
		if err != nil {
			var ue *usecase.Error
			if errors.As(err, &ue) && ue.Code == usecase.ErrorInvalidInput {
				fmt.Fprintf(out, "(%s)\n", strings.ReplaceAll(ue.Reason, "_", " "))
				continue
			}
			return err
		}
		v = next
	}
}

func ignoreQuit(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
