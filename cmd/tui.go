package cmd

import (
	"context"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
	"github.com/twiced-technology-gmbh/taskboard/internal/tui"
)

// tuiLogFile receives log output while the terminal UI owns the screen.
const tuiLogFile = "tui.log"

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive board",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	defer cancel() // stop the watcher before the store closes

	if s.cfg.LogPath() == "" {
		closer, err := logging.Setup(s.cfg.LogLevel(), filepath.Join(s.cfg.Dir(), tuiLogFile))
		if err == nil {
			closeLog()
			closeLog = closer
		}
	}

	model := tui.NewBoard(ctx, s.engine, s.cfg)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Listeners may fire while the store holds its lock, so messages are
	// sent from their own goroutines.
	unChange := s.engine.OnChange(func() { go p.Send(tui.ReloadMsg{}) })
	defer unChange()
	unNotice := s.engine.OnNotice(func(n engine.Notice) { go p.Send(tui.NoticeMsg{Notice: n}) })
	defer unNotice()

	// Changes of other processes; sync failures are logged by the store.
	go func() { _ = s.store.Watch(ctx, nil) }()

	_, err = p.Run()
	return err
}
