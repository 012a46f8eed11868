package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

var commentCmd = &cobra.Command{
	Use:     "comment ID TEXT...",
	Aliases: []string{"note"},
	Short:   "Add a comment or progress note to a task",
	Long: `Appends a comment to the task's activity. The comment counts as the task's
latest activity when sorting by last_activity.`,
	Args: cobra.MinimumNArgs(2), //nolint:mnd // id and text
	RunE: runComment,
}

func init() {
	rootCmd.AddCommand(commentCmd)
}

func runComment(_ *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if text == "" {
		return clierr.New(clierr.InvalidInput, "comment text is required")
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.resolveTask(args[0])
	if err != nil {
		return err
	}
	entry, err := s.engine.Comment(ctx, t.ID, text)
	if err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, entry)
	}
	output.Messagef(os.Stdout, "Commented on %s: %s", output.ShortID(t.ID), t.Title)
	return nil
}
