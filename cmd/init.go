package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new task board",
	Long: `Creates a board directory with config.yml and a SQLite database seeded with
the configured statuses.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("name", "", "board name (defaults to current directory name)")
	initCmd.Flags().StringSlice("statuses", nil, "comma-separated list of statuses")
	initCmd.Flags().String("done", "", "name of the done status (defaults to the last status)")
	initCmd.Flags().String("actor", "", "user name recorded on tasks and activity")
	initCmd.Flags().String("project", "", "only show tasks of this project")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	dir := flagDir
	if dir == "" {
		dir = config.DefaultDir
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		name = filepath.Base(cwd)
	}

	cfg := config.NewDefault(name)
	cfg.Actor, _ = cmd.Flags().GetString("actor")
	cfg.Board.Project, _ = cmd.Flags().GetString("project")

	if statuses := splitList(mustStringSlice(cmd, "statuses")); len(statuses) > 0 {
		sc := make([]config.StatusConfig, len(statuses))
		for i, s := range statuses {
			sc[i] = config.StatusConfig{Name: s}
		}
		cfg.Statuses = sc
		cfg.DoneStatus = statuses[len(statuses)-1]
	}
	if done, _ := cmd.Flags().GetString("done"); done != "" {
		cfg.DoneStatus = done
	}

	if err := cfg.Validate(); err != nil {
		return clierr.Wrap(clierr.InvalidInput, err, "%v", err)
	}

	if err := config.Init(dir, cfg); err != nil {
		return err
	}
	absDir := cfg.Dir()

	ctx := context.Background()
	s, err := openSessionWith(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	format := outputFormat()
	if format == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]string{
			"status":   "initialized",
			"dir":      absDir,
			"name":     name,
			"config":   cfg.ConfigPath(),
			"database": cfg.DatabasePath(),
			"actor":    s.actor.Name,
			"columns":  strings.Join(cfg.StatusNames(), ","),
		})
	}

	output.Messagef(os.Stdout, "Initialized board %q in %s", name, absDir)
	output.Messagef(os.Stdout, "  Config:   %s", cfg.ConfigPath())
	output.Messagef(os.Stdout, "  Database: %s", cfg.DatabasePath())
	output.Messagef(os.Stdout, "  Actor:    %s", s.actor.Name)
	output.Messagef(os.Stdout, "  Columns:  %s", strings.Join(cfg.StatusNames(), ", "))
	return nil
}

// mustStringSlice reads a string slice flag defined on cmd.
func mustStringSlice(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringSlice(name)
	return v
}
