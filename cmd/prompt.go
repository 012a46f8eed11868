package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

// errCanceled is returned when the user aborts a prompt.
var errCanceled = errors.New("canceled")

// interactive reports whether prompts can be shown.
func interactive() bool {
	return outputFormat() != output.FormatJSON &&
		term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// promptCompletion asks for the result and attachments of a task being
// completed.
func promptCompletion(title string) (result string, attachments []string, err error) {
	var attach string
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Complete: "+title).
				Description("What was the result?").
				Validate(requiredText("a result")).
				Value(&result),
			huh.NewInput().
				Title("Attachments").
				Description("Optional links or file paths, comma-separated").
				Value(&attach),
		),
	).WithOutput(os.Stderr).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", nil, errCanceled
	}
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(result), splitList([]string{attach}), nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithOutput(os.Stderr).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func requiredText(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return clierr.Newf(clierr.ResultRequired, "%s is required", what)
		}
		return nil
	}
}
