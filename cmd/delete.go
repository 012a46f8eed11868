package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var deleteCmd = &cobra.Command{
	Use:     "delete ID[,ID,...]",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Deletes a task together with its subtasks. Prompts for confirmation in
interactive mode.
Multiple IDs can be provided as a comma-separated list (requires --yes).`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	refs, err := parseIDs(args[0])
	if err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if len(refs) > 1 && !yes {
		return clierr.New(clierr.ConfirmationReq, "batch delete requires --yes")
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(refs) == 1 {
		return deleteSingleTask(ctx, s, refs[0], yes)
	}
	return runBatch(refs, func(ref string) error {
		t, err := s.resolveTask(ref)
		if err != nil {
			return err
		}
		return executeDelete(ctx, s, t)
	})
}

// deleteSingleTask handles a single task delete with confirmation and output.
func deleteSingleTask(ctx context.Context, s *session, ref string, yes bool) error {
	t, err := s.resolveTask(ref)
	if err != nil {
		return err
	}

	subtasks := board.Subtasks(s.engine.Tasks(), t.ID, s.lookup())
	if !yes {
		if !interactive() {
			return clierr.New(clierr.ConfirmationReq,
				"cannot prompt for confirmation (not a terminal); use --yes")
		}
		description := ""
		if len(subtasks) > 0 {
			description = fmt.Sprintf("Its %d subtask(s) are deleted as well.", len(subtasks))
		}
		ok, err := confirm(fmt.Sprintf("Delete task %s %q?", output.ShortID(t.ID), t.Title), description)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Canceled.")
			return nil
		}
	}

	if err := executeDelete(ctx, s, t); err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{
			"status":   "deleted",
			"id":       t.ID,
			"title":    t.Title,
			"subtasks": len(subtasks),
		})
	}
	output.Messagef(os.Stdout, "Deleted task %s: %s", output.ShortID(t.ID), t.Title)
	if len(subtasks) > 0 {
		output.Messagef(os.Stdout, "  and %d subtask(s)", len(subtasks))
	}
	return nil
}

// executeDelete deletes the task and waits until the deletion is stored.
func executeDelete(ctx context.Context, s *session, t task.Task) error {
	h, err := s.engine.Delete(ctx, t.ID)
	if err != nil {
		return err
	}
	return s.wait(ctx, h)
}
