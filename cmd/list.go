package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `Lists tasks with optional filtering and sorting. All filters must hold;
within one filter any listed value matches. Tasks without a value for the
sort field always come last.`,
	RunE: runList,
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().String("sort", "", "sort field ("+sortFieldNames()+")")
	listCmd.Flags().BoolP("reverse", "r", false, "sort descending")
	listCmd.Flags().IntP("limit", "n", 0, "limit number of results")
	rootCmd.AddCommand(listCmd)
}

// addFilterFlags registers the task filter flags shared by list and board.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("search", "s", "", "search title and description (case-insensitive)")
	cmd.Flags().StringSlice("status", nil, "filter by status name (comma-separated)")
	cmd.Flags().StringSlice("project", nil, "filter by project (comma-separated)")
	cmd.Flags().StringSlice("priority", nil, "filter by priority (comma-separated)")
	cmd.Flags().StringSlice("responsible", nil, "filter by responsible user (comma-separated)")
	cmd.Flags().StringSlice("coworker", nil, "filter by co-worker (comma-separated)")
	cmd.Flags().StringSlice("owner", nil, "filter by owner (comma-separated)")
	cmd.Flags().Bool("done", false, "show only completed tasks")
	cmd.Flags().Bool("open", false, "show only open tasks")
	cmd.Flags().String("due", "", "due date range FROM..TO (either side may be empty)")
	cmd.Flags().Bool("top-level", false, "hide subtasks")
	cmd.MarkFlagsMutuallyExclusive("done", "open")
}

func sortFieldNames() string {
	names := make([]string, len(board.SortFields))
	for i, f := range board.SortFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filter, err := filterFromFlags(cmd, s)
	if err != nil {
		return err
	}
	sort, err := sortFromFlags(cmd, s)
	if err != nil {
		return err
	}

	tasks := s.engine.View(filter, sort)
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return outputTaskList(s, tasks)
}

// filterFromFlags builds a filter from the flags added by addFilterFlags.
// Status and user names are resolved to ids.
func filterFromFlags(cmd *cobra.Command, s *session) (board.Filter, error) {
	var f board.Filter
	f.Search, _ = cmd.Flags().GetString("search")
	f.Search = strings.TrimSpace(f.Search)
	f.Projects = splitList(mustStringSlice(cmd, "project"))
	f.TopLevel, _ = cmd.Flags().GetBool("top-level")

	l := s.lookup()
	for _, ref := range splitList(mustStringSlice(cmd, "status")) {
		st, err := board.ResolveStatus(l, ref)
		if err != nil {
			return board.Filter{}, err
		}
		f.Statuses = append(f.Statuses, st.ID)
	}
	for _, ref := range splitList(mustStringSlice(cmd, "priority")) {
		p, err := task.ParsePriority(ref)
		if err != nil {
			return board.Filter{}, err
		}
		f.Priorities = append(f.Priorities, p)
	}

	users := s.engine.Users()
	for flag, dst := range map[string]*[]string{
		"responsible": &f.Responsible,
		"coworker":    &f.Coworkers,
		"owner":       &f.Owners,
	} {
		for _, ref := range splitList(mustStringSlice(cmd, flag)) {
			id, err := board.ResolveUser(users, ref)
			if err != nil {
				return board.Filter{}, err
			}
			*dst = append(*dst, id)
		}
	}

	if done, _ := cmd.Flags().GetBool("done"); done {
		f.Completed = task.Ptr(true)
	}
	if open, _ := cmd.Flags().GetBool("open"); open {
		f.Completed = task.Ptr(false)
	}
	if v, _ := cmd.Flags().GetString("due"); v != "" {
		r, err := date.ParseRange(v)
		if err != nil {
			return board.Filter{}, clierr.Wrap(clierr.InvalidDate, err, "%v", err).
				WithDetails(map[string]any{"due": v})
		}
		f.Due = r
	}
	return f, nil
}

// sortFromFlags returns the sort named by --sort/--reverse, defaulting to
// the configured sort.
func sortFromFlags(cmd *cobra.Command, s *session) (board.Sort, error) {
	field, _ := cmd.Flags().GetString("sort")
	direction := s.cfg.Sort.Direction
	if field == "" {
		field = s.cfg.Sort.Field
	}
	if reverse, _ := cmd.Flags().GetBool("reverse"); reverse {
		direction = string(board.Desc)
	}
	return board.ParseSort(field, direction)
}

func outputTaskList(s *session, tasks []task.Task) error {
	l := s.lookup()
	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, output.Records(tasks, l, s.now()))
	case output.FormatCompact:
		output.TaskCompact(os.Stdout, tasks, l)
	default:
		output.TaskTable(os.Stdout, tasks, l, s.now())
	}
	return nil
}
