package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	Aliases: []string{"summary"},
	Short:   "Show board summary",
	Long: `Displays a summary of the board: task counts per status, subtask and overdue
counts, and the priority distribution. --columns lists the tasks of every
column in board order instead.

Use --watch to keep the display live. The board re-renders whenever a task
changes, including changes made by other taskboard processes. Press Ctrl+C
to stop.`,
	RunE: runBoard,
}

func init() {
	addFilterFlags(boardCmd)
	boardCmd.Flags().BoolP("watch", "w", false, "live-update the board on changes")
	boardCmd.Flags().Bool("columns", false, "list the tasks of every column")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filter, err := filterFromFlags(cmd, s)
	if err != nil {
		return err
	}
	columns, _ := cmd.Flags().GetBool("columns")
	render := func() error { return renderBoard(s, filter, columns) }

	if err := render(); err != nil {
		return err
	}
	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}
	return watchBoard(ctx, s, render)
}

func renderBoard(s *session, filter board.Filter, columns bool) error {
	l := s.lookup()
	format := outputFormat()

	if columns {
		cols := s.engine.Columns(filter)
		switch format {
		case output.FormatJSON:
			return output.JSON(os.Stdout, cols)
		case output.FormatCompact:
			output.ColumnsCompact(os.Stdout, cols, l)
		default:
			output.ColumnsTable(os.Stdout, cols, l, board.SubtaskCounts(s.engine.Tasks()), s.now())
		}
		return nil
	}

	summary := board.Summary(s.cfg.Board.Name, s.engine.View(filter, board.Sort{}), l, s.now())
	switch format {
	case output.FormatJSON:
		return output.JSON(os.Stdout, summary)
	case output.FormatCompact:
		output.OverviewCompact(os.Stdout, summary)
	default:
		output.OverviewTable(os.Stdout, summary)
	}
	return nil
}

// watchBoard re-renders after every change until ctx ends. Changes of other
// processes arrive through the store watcher.
func watchBoard(ctx context.Context, s *session, render func() error) error {
	changed := make(chan struct{}, 1)
	unsubscribe := s.engine.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	go func() {
		err := s.store.Watch(ctx, func(err error) {
			fmt.Fprintf(os.Stderr, "Warning: watching database: %v\n", err)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: starting database watcher: %v\n", err)
		}
	}()

	fmt.Fprintln(os.Stderr, "Watching for changes... (Ctrl+C to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			clearScreen()
			if err := render(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: rendering board: %v\n", err)
			}
		}
	}
}

// clearScreen sends ANSI escape codes to clear the terminal and move the
// cursor to the top-left corner.
func clearScreen() {
	fmt.Fprint(os.Stdout, "\033[2J\033[H")
}
