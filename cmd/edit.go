package cmd

import (
	"context"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var editCmd = &cobra.Command{
	Use:   "edit ID[,ID,...]",
	Short: "Edit a task",
	Long: `Modifies fields of an existing task. Only specified fields are changed.
Multiple IDs can be provided as a comma-separated list. Use move to change
the status or position of a task.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("body", "", "new description (replaces the whole description)")
	editCmd.Flags().StringP("append-body", "a", "", "append text to the description")
	editCmd.Flags().String("priority", "", "new priority")
	editCmd.Flags().String("responsible", "", "new responsible user")
	editCmd.Flags().Bool("clear-responsible", false, "clear the responsible user")
	editCmd.Flags().StringSlice("coworkers", nil, "replace co-workers (comma-separated)")
	editCmd.Flags().StringSlice("add-coworker", nil, "add co-workers")
	editCmd.Flags().StringSlice("remove-coworker", nil, "remove co-workers")
	editCmd.Flags().String("due", "", "new due date (YYYY-MM-DD)")
	editCmd.Flags().Bool("clear-due", false, "clear due date")
	editCmd.Flags().String("project", "", "new project id")
	editCmd.Flags().Bool("clear-project", false, "clear project")
	editCmd.Flags().String("parent", "", "new parent task id")
	editCmd.Flags().Bool("clear-parent", false, "make the task top-level")
	editCmd.Flags().String("result", "", "new completion result")
	editCmd.MarkFlagsMutuallyExclusive("responsible", "clear-responsible")
	editCmd.MarkFlagsMutuallyExclusive("due", "clear-due")
	editCmd.MarkFlagsMutuallyExclusive("project", "clear-project")
	editCmd.MarkFlagsMutuallyExclusive("parent", "clear-parent")
	editCmd.MarkFlagsMutuallyExclusive("body", "append-body")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
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

	if len(refs) == 1 {
		t, err := executeEdit(ctx, s, refs[0], cmd)
		if err != nil {
			return err
		}
		if outputFormat() == output.FormatJSON {
			return output.JSON(os.Stdout, output.Record(t, s.lookup(), s.now()))
		}
		output.Messagef(os.Stdout, "Updated task %s: %s", output.ShortID(t.ID), t.Title)
		return nil
	}

	return runBatch(refs, func(ref string) error {
		_, err := executeEdit(ctx, s, ref, cmd)
		return err
	})
}

// executeEdit builds a patch from the flags, applies it and waits for it
// to persist.
func executeEdit(ctx context.Context, s *session, ref string, cmd *cobra.Command) (task.Task, error) {
	t, err := s.resolveTask(ref)
	if err != nil {
		return task.Task{}, err
	}

	p, err := editPatch(ctx, cmd, s, t)
	if err != nil {
		return task.Task{}, err
	}
	if p.Fields == 0 {
		return task.Task{}, clierr.New(clierr.NoChanges, "no changes specified")
	}

	h, err := s.engine.Update(ctx, t.ID, p)
	if err != nil {
		return task.Task{}, err
	}
	if err := s.wait(ctx, h); err != nil {
		return task.Task{}, err
	}
	updated, _ := s.engine.Get(t.ID)
	return updated, nil
}

func editPatch(ctx context.Context, cmd *cobra.Command, s *session, t task.Task) (task.Patch, error) {
	var p task.Patch
	set := func(f task.Fields) { p.Fields |= f }
	changed := cmd.Flags().Changed

	if changed("title") {
		p.Values.Title, _ = cmd.Flags().GetString("title")
		set(task.FieldTitle)
	}
	if changed("body") {
		p.Values.Description, _ = cmd.Flags().GetString("body")
		set(task.FieldDescription)
	}
	if v, _ := cmd.Flags().GetString("append-body"); v != "" {
		p.Values.Description = strings.TrimRight(t.Description, "\n")
		if p.Values.Description != "" {
			p.Values.Description += "\n\n"
		}
		p.Values.Description += v
		set(task.FieldDescription)
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		prio, err := task.ParsePriority(v)
		if err != nil {
			return p, err
		}
		p.Values.Priority = prio
		set(task.FieldPriority)
	}
	if v, _ := cmd.Flags().GetString("responsible"); v != "" {
		ids, err := s.resolveUsers(ctx, []string{v})
		if err != nil {
			return p, err
		}
		p.Values.ResponsibleID = &ids[0]
		set(task.FieldResponsible)
	}
	if v, _ := cmd.Flags().GetBool("clear-responsible"); v {
		set(task.FieldResponsible)
	}
	if err := editCoworkers(ctx, cmd, s, t, &p); err != nil {
		return p, err
	}
	if v, _ := cmd.Flags().GetString("due"); v != "" {
		d, err := parseDue(v)
		if err != nil {
			return p, err
		}
		p.Values.Due = &d
		set(task.FieldDue)
	}
	if v, _ := cmd.Flags().GetBool("clear-due"); v {
		set(task.FieldDue)
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		p.Values.ProjectID = task.Ptr(strings.TrimSpace(v))
		set(task.FieldProject)
	}
	if v, _ := cmd.Flags().GetBool("clear-project"); v {
		set(task.FieldProject)
	}
	if v, _ := cmd.Flags().GetString("parent"); v != "" {
		parent, err := s.resolveTask(v)
		if err != nil {
			return p, err
		}
		p.Values.ParentID = &parent.ID
		set(task.FieldParent)
	}
	if v, _ := cmd.Flags().GetBool("clear-parent"); v {
		set(task.FieldParent)
	}
	if changed("result") {
		p.Values.Result, _ = cmd.Flags().GetString("result")
		set(task.FieldResult)
	}
	return p, nil
}

// editCoworkers applies --coworkers, then --add-coworker and --remove-coworker.
func editCoworkers(ctx context.Context, cmd *cobra.Command, s *session, t task.Task, p *task.Patch) error {
	replace := splitList(mustStringSlice(cmd, "coworkers"))
	add := splitList(mustStringSlice(cmd, "add-coworker"))
	remove := splitList(mustStringSlice(cmd, "remove-coworker"))
	if len(replace) == 0 && len(add) == 0 && len(remove) == 0 {
		return nil
	}

	ids := slices.Clone(t.CoworkerIDs)
	if len(replace) > 0 {
		var err error
		if ids, err = s.resolveUsers(ctx, replace); err != nil {
			return err
		}
	}
	added, err := s.resolveUsers(ctx, add)
	if err != nil {
		return err
	}
	for _, id := range added {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	removed := make([]string, 0, len(remove))
	for _, ref := range remove {
		id, err := board.ResolveUser(s.engine.Users(), ref)
		if err != nil {
			return err
		}
		removed = append(removed, id)
	}
	ids = slices.DeleteFunc(ids, func(id string) bool { return slices.Contains(removed, id) })

	p.Values.CoworkerIDs = ids
	p.Fields |= task.FieldCoworkers
	return nil
}
