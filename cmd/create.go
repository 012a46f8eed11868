package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var createCmd = &cobra.Command{
	Use:     "create [TITLE]",
	Aliases: []string{"add"},
	Short:   "Create a new task",
	Long: `Creates a new task at the end of its column.

Title can be provided as a positional argument or via --title flag.
The description can be provided via --body or --description.
A task created directly in the done status needs --result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().String("title", "", "task title (alternative to positional argument)")
	createCmd.Flags().String("body", "", "task description (markdown)")
	createCmd.Flags().String("status", "", "status name (default: first column)")
	createCmd.Flags().String("priority", "", "priority (low, medium, high, urgent or 0-3)")
	createCmd.Flags().String("responsible", "", "responsible user")
	createCmd.Flags().StringSlice("coworkers", nil, "co-workers (comma-separated)")
	createCmd.Flags().String("due", "", "due date (YYYY-MM-DD, today, tomorrow)")
	createCmd.Flags().String("project", "", "project id")
	createCmd.Flags().String("parent", "", "parent task id (creates a subtask)")
	createCmd.Flags().String("result", "", "completion result (required when created done)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	title, err := resolveCreateTitle(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	t := task.Task{Title: title}
	if s.cfg.Board.Project != "" {
		t.ProjectID = task.Ptr(s.cfg.Board.Project)
	}
	if err := applyCreateFlags(ctx, cmd, s, &t); err != nil {
		return err
	}

	h, err := s.engine.Create(ctx, t)
	if err != nil {
		return err
	}
	if err := s.wait(ctx, h); err != nil {
		return err
	}

	created, _ := s.engine.Get(h.IDs()[0])
	return outputCreateResult(s, created)
}

func outputCreateResult(s *session, t task.Task) error {
	l := s.lookup()
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, output.Record(t, l, s.now()))
	}

	output.Messagef(os.Stdout, "Created task %s: %s", output.ShortID(t.ID), t.Title)
	output.Messagef(os.Stdout, "  Status: %s | Priority: %s", l.StatusName(t.StatusID), task.PriorityName(t.Priority))
	if t.ResponsibleID != nil {
		output.Messagef(os.Stdout, "  Responsible: %s", l.UserName(*t.ResponsibleID))
	}
	if t.ParentID != nil {
		output.Messagef(os.Stdout, "  Parent: %s", output.ShortID(*t.ParentID))
	}
	return nil
}

// resolveCreateTitle returns the task title from either the positional arg or --title flag.
func resolveCreateTitle(cmd *cobra.Command, args []string) (string, error) {
	flagTitle, _ := cmd.Flags().GetString("title")
	hasPositional := len(args) > 0
	hasFlag := flagTitle != ""

	switch {
	case hasPositional && hasFlag:
		return "", clierr.New(clierr.InvalidInput,
			"title provided both as argument and --title flag; use one or the other")
	case hasPositional:
		return args[0], nil
	case hasFlag:
		return flagTitle, nil
	default:
		return "", clierr.New(clierr.InvalidInput, "title is required: provide it as an argument or with --title").
			WithDetails(map[string]any{"field": "title"})
	}
}

func applyCreateFlags(ctx context.Context, cmd *cobra.Command, s *session, t *task.Task) error {
	if v, _ := cmd.Flags().GetString("body"); v != "" {
		t.Description = v
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		st, err := board.ResolveStatus(s.lookup(), v)
		if err != nil {
			return err
		}
		t.StatusID = st.ID
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		p, err := task.ParsePriority(v)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if v, _ := cmd.Flags().GetString("responsible"); v != "" {
		ids, err := s.resolveUsers(ctx, []string{v})
		if err != nil {
			return err
		}
		t.ResponsibleID = &ids[0]
	}
	if v := splitList(mustStringSlice(cmd, "coworkers")); len(v) > 0 {
		ids, err := s.resolveUsers(ctx, v)
		if err != nil {
			return err
		}
		t.CoworkerIDs = ids
	}
	if v, _ := cmd.Flags().GetString("due"); v != "" {
		d, err := parseDue(v)
		if err != nil {
			return err
		}
		t.Due = &d
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		t.ProjectID = task.Ptr(strings.TrimSpace(v))
	}
	if v, _ := cmd.Flags().GetString("parent"); v != "" {
		parent, err := s.resolveTask(v)
		if err != nil {
			return err
		}
		t.ParentID = &parent.ID
		if t.StatusID == "" {
			t.StatusID = parent.StatusID
		}
	}
	if v, _ := cmd.Flags().GetString("result"); v != "" {
		t.Result = v
	}
	return nil
}

// parseDue parses a due date flag into an INVALID_DATE error on failure.
func parseDue(v string) (time.Time, error) {
	d, err := date.Parse(v)
	if err != nil {
		return d, clierr.Wrap(clierr.InvalidDate, err, "invalid due date %q: %v", v, err).
			WithDetails(map[string]any{"due": v})
	}
	return d, nil
}
