// Package cmd implements the taskboard CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

// version is set at build time via ldflags.
var version = "dev"

// Global flags.
var (
	flagJSON     bool
	flagTable    bool
	flagCompact  bool
	flagDir      string
	flagNoColor  bool
	flagLogLevel string
)

// closeLog flushes the log file opened in PersistentPreRunE.
var closeLog = func() {}

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Task board with live sync",
	Long: `taskboard keeps a task board in a local SQLite database and shows it as a
live kanban board. Run taskboard without arguments to open the terminal UI.
Every command sees changes made by other taskboard processes.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runTUI,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		output.SetupColor(flagNoColor)
		return setupLogging(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagTable, "table", false, "output as table")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "compact", false, "compact one-line-per-record output")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "path to the board directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error, disabled)")
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		switch name {
		case "oneline":
			name = "compact"
		case "description":
			name = "body"
		}
		return pflag.NormalizedName(name)
	})
}

// Execute runs the root command.
func Execute() {
	_, err := rootCmd.ExecuteC()
	closeLog()
	if err == nil {
		return
	}

	var silent *clierr.SilentError
	if errors.As(err, &silent) {
		os.Exit(silent.Code)
	}

	if outputFormat() == output.FormatJSON {
		var cliErr *clierr.Error
		if errors.As(err, &cliErr) {
			output.JSONError(os.Stdout, cliErr.Code, cliErr.Message, cliErr.Details)
			os.Exit(cliErr.ExitCode())
		}
		output.JSONError(os.Stdout, clierr.InternalError, err.Error(), nil)
		os.Exit(2) //nolint:mnd // exit code 2 for internal errors
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		os.Exit(cliErr.ExitCode())
	}
	os.Exit(1)
}

// setupLogging installs the global logger. Level and file come from the
// board config when one is found; --log-level overrides the level.
func setupLogging(cmd *cobra.Command) error {
	level, file := config.DefaultLogLevel, ""
	if cmd.Name() != "init" {
		if cfg, err := loadConfig(); err == nil {
			level, file = cfg.LogLevel(), cfg.LogPath()
		}
	}
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	closer, err := logging.Setup(level, file)
	if err != nil {
		return clierr.Wrap(clierr.InvalidInput, err, "configuring logger: %v", err)
	}
	closeLog = closer
	return nil
}

// resolveDir returns the board directory: --dir, or the nearest board found
// walking up from the working directory.
func resolveDir() (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return config.FindDir(cwd)
}

// loadConfig finds and loads the board config.
func loadConfig() (*config.Config, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if errors.Is(err, config.ErrNotFound) {
		return nil, clierr.Newf(clierr.BoardNotFound, "no task board found in %s (run 'taskboard init')", dir).
			WithDetails(map[string]any{"dir": dir})
	}
	if errors.Is(err, config.ErrInvalid) {
		return nil, clierr.Wrap(clierr.InvalidInput, err, "%v", err)
	}
	return cfg, err
}

// outputFormat returns the detected output format from flags/env.
func outputFormat() output.Format {
	return output.Detect(flagJSON, flagTable, flagCompact)
}

// parseIDs splits a comma-separated ID string into deduplicated ids.
func parseIDs(arg string) ([]string, error) {
	return board.ParseIDs(arg)
}

// runBatch executes fn for each ID and collects results. Returns a SilentError
// with exit code 1 if any operation failed (after outputting results).
func runBatch(ids []string, fn func(string) error) error {
	results := make([]output.BatchResult, 0, len(ids))
	anyFailed := false

	for _, id := range ids {
		err := fn(id)
		if err != nil {
			anyFailed = true
			var cliErr *clierr.Error
			if errors.As(err, &cliErr) {
				results = append(results, output.BatchResult{ID: id, OK: false, Error: cliErr.Message, Code: cliErr.Code})
			} else {
				results = append(results, output.BatchResult{ID: id, OK: false, Error: err.Error()})
			}
		} else {
			results = append(results, output.BatchResult{ID: id, OK: true})
		}
	}

	if outputFormat() == output.FormatJSON {
		if err := output.JSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		var succeeded int
		for _, r := range results {
			if r.OK {
				succeeded++
			} else {
				fmt.Fprintf(os.Stderr, "Error: task %s: %s\n", output.ShortID(r.ID), r.Error)
			}
		}
		output.Messagef(os.Stdout, "Completed %d/%d operations", succeeded, len(ids))
	}

	if anyFailed {
		return &clierr.SilentError{Code: 1}
	}
	return nil
}

// splitList splits comma-separated flag values and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
