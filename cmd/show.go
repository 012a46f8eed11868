package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

const showActivityLimit = 10

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show task details",
	Long: `Displays full details of a single task including its markdown description,
its subtasks and its most recent activity.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

// taskDetail is the JSON shape of show.
type taskDetail struct {
	output.TaskRecord
	Subtasks []output.TaskRecord  `json:"subtasks"`
	Activity []board.ActivityEntry `json:"activity"`
}

func init() {
	showCmd.Flags().Int("activity", showActivityLimit, "number of activity entries to show")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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

	l := s.lookup()
	subtasks := board.Subtasks(s.engine.Tasks(), t.ID, l)
	limit, _ := cmd.Flags().GetInt("activity")
	activity, err := s.engine.Activity(ctx, t.ID, limit)
	if err != nil {
		return err
	}

	switch outputFormat() {
	case output.FormatJSON:
		if activity == nil {
			activity = []board.ActivityEntry{}
		}
		return output.JSON(os.Stdout, taskDetail{
			TaskRecord: output.Record(t, l, s.now()),
			Subtasks:   output.Records(subtasks, l, s.now()),
			Activity:   activity,
		})
	case output.FormatCompact:
		output.TaskDetailCompact(os.Stdout, t, l, subtasks)
	default:
		output.TaskDetail(os.Stdout, t, l, subtasks, activity, s.now())
	}
	return nil
}
