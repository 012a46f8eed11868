package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var moveCmd = &cobra.Command{
	Use:   "move ID[,ID,...] [STATUS]",
	Short: "Move a task to a different status or position",
	Long: `Moves a task to the end of another column, or next to another task with
--before/--after. Use --next/--prev to move along the column order.

Moving a task into the done status requires a result: pass --result, or
answer the prompt in an interactive terminal.
Multiple IDs can be provided as a comma-separated list.`,
	Args: cobra.RangeArgs(1, 2), //nolint:mnd // 1 or 2 positional args
	RunE: runMove,
}

var completeCmd = &cobra.Command{
	Use:     "complete ID",
	Aliases: []string{"done"},
	Short:   "Move a task into the done status",
	Long: `Completes a task with a result. Without --result an interactive terminal
prompts for the result and optional attachments.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	moveCmd.Flags().Bool("next", false, "move to the next status")
	moveCmd.Flags().Bool("prev", false, "move to the previous status")
	moveCmd.Flags().String("before", "", "place before this task")
	moveCmd.Flags().String("after", "", "place after this task")
	moveCmd.MarkFlagsMutuallyExclusive("next", "prev", "before", "after")
	for _, c := range []*cobra.Command{moveCmd, completeCmd} {
		c.Flags().String("result", "", "completion result (required when moving into done)")
		c.Flags().StringSlice("attach", nil, "attachment links recorded with the completion")
	}
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(completeCmd)
}

// moveTarget is where a task is moved to.
type moveTarget struct {
	statusID  string
	relTo     string
	placement engine.Placement
}

// moveResult wraps a task with a changed flag for JSON output.
type moveResult struct {
	output.TaskRecord
	Changed bool `json:"changed"`
}

func runMove(cmd *cobra.Command, args []string) error {
	refs, err := parseIDs(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	completion := completionFlags(cmd)
	if len(refs) == 1 {
		return moveSingleTask(ctx, s, refs[0], cmd, args, completion)
	}
	return runBatch(refs, func(ref string) error {
		_, _, err := executeMove(ctx, s, ref, cmd, args, completion)
		return err
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	l := s.lookup()
	if l.DoneID == "" {
		return clierr.Newf(clierr.StatusNotFound, "done status %q not found", s.cfg.DoneStatus)
	}
	return moveSingleTask(ctx, s, args[0], cmd, []string{args[0], l.DoneID}, completionFlags(cmd))
}

type completion struct {
	result      string
	attachments []string
}

func completionFlags(cmd *cobra.Command) *completion {
	c := &completion{}
	c.result, _ = cmd.Flags().GetString("result")
	c.attachments = splitList(mustStringSlice(cmd, "attach"))
	return c
}

func moveSingleTask(ctx context.Context, s *session, ref string, cmd *cobra.Command, args []string, c *completion) error {
	before, t, err := executeMove(ctx, s, ref, cmd, args, c)
	if errors.Is(err, errCanceled) {
		fmt.Fprintln(os.Stderr, "Canceled.")
		return nil
	}
	if err != nil {
		return err
	}

	l := s.lookup()
	changed := before.StatusID != t.StatusID || before.Position != t.Position
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, moveResult{TaskRecord: output.Record(t, l, s.now()), Changed: changed})
	}
	switch {
	case !changed:
		output.Messagef(os.Stdout, "Task %s is already there", output.ShortID(t.ID))
	case before.StatusID == t.StatusID:
		output.Messagef(os.Stdout, "Reordered task %s in %s", output.ShortID(t.ID), l.StatusName(t.StatusID))
	default:
		output.Messagef(os.Stdout, "Moved task %s: %s -> %s", output.ShortID(t.ID),
			l.StatusName(before.StatusID), l.StatusName(t.StatusID))
	}
	return nil
}

// executeMove resolves the target and moves the task, prompting for a
// result when the move completes the task. It returns the task before and
// after the move.
func executeMove(ctx context.Context, s *session, ref string, cmd *cobra.Command, args []string, c *completion) (task.Task, task.Task, error) {
	t, err := s.resolveTask(ref)
	if err != nil {
		return task.Task{}, task.Task{}, err
	}
	target, err := resolveMoveTarget(cmd, args, s, t)
	if err != nil {
		return task.Task{}, task.Task{}, err
	}

	h, err := s.engine.Move(ctx, t.ID, target.statusID, target.relTo, target.placement, c.result, c.attachments...)
	if clierr.CodeOf(err) == clierr.ResultRequired && interactive() {
		c.result, c.attachments, err = promptCompletion(t.Title)
		if err != nil {
			return task.Task{}, task.Task{}, err
		}
		h, err = s.engine.Move(ctx, t.ID, target.statusID, target.relTo, target.placement, c.result, c.attachments...)
	}
	if err != nil {
		return task.Task{}, task.Task{}, err
	}
	if err := s.wait(ctx, h); err != nil {
		return task.Task{}, task.Task{}, err
	}
	after, _ := s.engine.Get(t.ID)
	return t, after, nil
}

func resolveMoveTarget(cmd *cobra.Command, args []string, s *session, t task.Task) (moveTarget, error) {
	l := s.lookup()
	if v, _ := cmd.Flags().GetString("before"); v != "" {
		rel, err := s.resolveTask(v)
		return moveTarget{relTo: rel.ID, placement: engine.Before}, err
	}
	if v, _ := cmd.Flags().GetString("after"); v != "" {
		rel, err := s.resolveTask(v)
		return moveTarget{relTo: rel.ID, placement: engine.After}, err
	}

	next, _ := cmd.Flags().GetBool("next")
	prev, _ := cmd.Flags().GetBool("prev")
	switch {
	case len(args) == 2: //nolint:mnd // positional status
		st, err := board.ResolveStatus(l, args[1])
		return moveTarget{statusID: st.ID}, err
	case next, prev:
		idx := -1
		for i, st := range l.Statuses {
			if st.ID == t.StatusID {
				idx = i
			}
		}
		if next {
			idx++
		} else {
			idx--
		}
		if idx < 0 || idx >= len(l.Statuses) {
			return moveTarget{}, clierr.Newf(clierr.InvalidStatus, "task %s is already in the %s column",
				output.ShortID(t.ID), edgeName(next)).
				WithDetails(map[string]any{"id": t.ID, "status": l.StatusName(t.StatusID)})
		}
		return moveTarget{statusID: l.Statuses[idx].ID}, nil
	default:
		return moveTarget{}, clierr.New(clierr.InvalidInput, "provide a target status, --next/--prev or --before/--after")
	}
}

func edgeName(next bool) string {
	if next {
		return "last"
	}
	return "first"
}
