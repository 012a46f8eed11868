package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify board configuration",
	Long:  `View the full configuration, get a specific key, or set a writable value.`,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2), //nolint:mnd // key and value
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// configAccessor describes how to get and set a config key.
type configAccessor struct {
	get func(*config.Config) any
	set func(*config.Config, string) error
}

func (a configAccessor) writable() bool { return a.set != nil }

func stringAccessor(field func(*config.Config) *string) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error { *field(c) = v; return nil },
	}
}

func intAccessor(key string, field func(*config.Config) *int) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return clierr.Newf(clierr.InvalidInput, "invalid %s %q: must be an integer", key, v)
			}
			*field(c) = n
			return nil // Validate checks the range
		},
	}
}

func configAccessors() map[string]configAccessor {
	return map[string]configAccessor{
		"version": {
			get: func(c *config.Config) any { return c.Version },
		},
		"board.name":        stringAccessor(func(c *config.Config) *string { return &c.Board.Name }),
		"board.description": stringAccessor(func(c *config.Config) *string { return &c.Board.Description }),
		"board.project":     stringAccessor(func(c *config.Config) *string { return &c.Board.Project }),
		"database": {
			get: func(c *config.Config) any { return c.Database },
		},
		"actor":          stringAccessor(func(c *config.Config) *string { return &c.Actor }),
		"done_status":    stringAccessor(func(c *config.Config) *string { return &c.DoneStatus }),
		"position_gap":   intAccessor("position_gap", func(c *config.Config) *int { return &c.PositionGap }),
		"sort.field":     stringAccessor(func(c *config.Config) *string { return &c.Sort.Field }),
		"sort.direction": stringAccessor(func(c *config.Config) *string { return &c.Sort.Direction }),
		"log.level":      stringAccessor(func(c *config.Config) *string { return &c.Log.Level }),
		"log.file":       stringAccessor(func(c *config.Config) *string { return &c.Log.File }),
		"activity.mode":  stringAccessor(func(c *config.Config) *string { return &c.Activity.Mode }),
		"activity.file":  stringAccessor(func(c *config.Config) *string { return &c.Activity.File }),
		"statuses": {
			get: func(c *config.Config) any { return c.StatusNames() },
		},
		"tui.title_lines": intAccessor("tui.title_lines", func(c *config.Config) *int { return &c.TUI.TitleLines }),
		"tui.body_lines":  intAccessor("tui.body_lines", func(c *config.Config) *int { return &c.TUI.BodyLines }),
		"tui.show_done": {
			get: func(c *config.Config) any { return c.TUI.ShowDone },
			set: func(c *config.Config, v string) error {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return clierr.Newf(clierr.InvalidInput, "invalid tui.show_done %q: must be true or false", v)
				}
				c.TUI.ShowDone = b
				return nil
			},
		},
	}
}

// allConfigKeys returns config keys in display order.
func allConfigKeys() []string {
	return []string{
		"version",
		"board.name",
		"board.description",
		"board.project",
		"database",
		"actor",
		"done_status",
		"position_gap",
		"statuses",
		"sort.field",
		"sort.direction",
		"activity.mode",
		"activity.file",
		"log.level",
		"log.file",
		"tui.title_lines",
		"tui.body_lines",
		"tui.show_done",
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	accessors := configAccessors()

	if outputFormat() == output.FormatJSON {
		m := make(map[string]any, len(accessors))
		for _, key := range allConfigKeys() {
			m[key] = accessors[key].get(cfg)
		}
		return output.JSON(os.Stdout, m)
	}

	for _, key := range allConfigKeys() {
		val := accessors[key].get(cfg)
		fmt.Fprintf(os.Stdout, "%-20s %v\n", key, formatConfigValue(val))
	}
	return nil
}

func runConfigGet(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key := args[0]
	acc, ok := configAccessors()[key]
	if !ok {
		return unknownConfigKey(key)
	}

	val := acc.get(cfg)
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, val)
	}
	fmt.Fprintln(os.Stdout, formatConfigValue(val))
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	acc, ok := configAccessors()[key]
	if !ok {
		return unknownConfigKey(key)
	}
	if !acc.writable() {
		return clierr.Newf(clierr.InvalidInput, "config key %q is read-only", key)
	}

	if err := acc.set(cfg, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return clierr.Wrap(clierr.InvalidInput, err, "%v", err)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{"key": key, "value": acc.get(cfg)})
	}
	output.Messagef(os.Stdout, "Set %s = %v", key, formatConfigValue(acc.get(cfg)))
	return nil
}

func unknownConfigKey(key string) error {
	return clierr.Newf(clierr.InvalidInput, "unknown config key %q", key).
		WithDetails(map[string]any{"allowed": allConfigKeys()})
}

func formatConfigValue(val any) string {
	switch v := val.(type) {
	case []string:
		return strings.Join(v, ", ")
	case string:
		if v == "" {
			return "--"
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
