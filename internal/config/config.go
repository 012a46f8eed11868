package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"
	"go.yaml.in/yaml/v3"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/filelock"
)

const fileMode = 0o600

// Sentinel errors.
var (
	ErrNotFound = errors.New("no task board found (run 'taskboard init' to create one)")
	ErrInvalid  = errors.New("invalid config")
)

// Config represents the task board configuration.
type Config struct {
	Version     int            `yaml:"version"`
	Board       BoardConfig    `yaml:"board"`
	Database    string         `yaml:"database"`
	Actor       string         `yaml:"actor,omitempty"`
	DoneStatus  string         `yaml:"done_status"`
	PositionGap int            `yaml:"position_gap"`
	Sort        SortConfig     `yaml:"sort"`
	Log         LogConfig      `yaml:"log,omitempty"`
	Activity    ActivityConfig `yaml:"activity"`
	Statuses    []StatusConfig `yaml:"statuses"`
	TUI         TUIConfig      `yaml:"tui,omitempty"`

	// dir is the absolute path to the board directory (not serialized).
	dir string `yaml:"-"`
}

// BoardConfig holds board metadata.
type BoardConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Project     string `yaml:"project,omitempty"`
}

// SortConfig is the initial sort of list views.
type SortConfig struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// ActivityConfig selects where activity entries are written.
type ActivityConfig struct {
	Mode string `yaml:"mode"`
	File string `yaml:"file,omitempty"`
}

// TUIConfig holds TUI-specific display settings.
type TUIConfig struct {
	TitleLines int  `yaml:"title_lines,omitempty"`
	BodyLines  int  `yaml:"body_lines,omitempty"`
	ShowDone   bool `yaml:"show_done,omitempty"`
}

// StatusConfig seeds a status column.
type StatusConfig struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// UnmarshalYAML allows StatusConfig to be parsed from either a plain string
// ("Todo") or a mapping ({name: Todo, color: "39"}).
func (s *StatusConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Name = value.Value
		return nil
	}
	type plain StatusConfig
	return value.Decode((*plain)(s))
}

// Dir returns the absolute path to the board directory.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir sets the board directory path on the config.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// ConfigPath returns the absolute path to the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.dir, ConfigFileName)
}

// DatabasePath returns the absolute path to the database file.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Database)
}

// ActivityPath returns the absolute path to the JSONL activity log.
func (c *Config) ActivityPath() string {
	return c.resolve(c.Activity.File)
}

// LogPath returns the absolute path to the log file, or "" for stderr.
func (c *Config) LogPath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// LogLevel returns the configured log level or DefaultLogLevel.
func (c *Config) LogLevel() string {
	if c.Log.Level == "" {
		return DefaultLogLevel
	}
	return c.Log.Level
}

// TitleLines returns the configured number of title lines for TUI cards.
func (c *Config) TitleLines() int {
	if c.TUI.TitleLines == 0 {
		return DefaultTitleLines
	}
	return c.TUI.TitleLines
}

// StatusNames returns the ordered list of seeded status names.
func (c *Config) StatusNames() []string {
	names := make([]string, len(c.Statuses))
	for i, s := range c.Statuses {
		names[i] = s.Name
	}
	return names
}

// NewDefault creates a Config with default values.
func NewDefault(name string) *Config {
	return &Config{
		Version:     CurrentVersion,
		Board:       BoardConfig{Name: name},
		Database:    DefaultDatabase,
		DoneStatus:  DefaultDoneStatus,
		PositionGap: DefaultPositionGap,
		Sort:        SortConfig{Field: DefaultSortField, Direction: DefaultSortDirection},
		Activity:    ActivityConfig{Mode: ActivityTable, File: DefaultActivityFile},
		Statuses:    slices.Clone(DefaultStatuses),
		TUI:         TUIConfig{TitleLines: DefaultTitleLines},
	}
}

// Validate checks the config for errors. Field problems are reported
// together as criterio.FieldErrors wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrInvalid, c.Version, CurrentVersion)
	}

	err := criterio.ValidateStruct(
		criterio.Run("board.name", c.Board.Name, required),
		criterio.Run("database", c.Database, required),
		checkInt("position_gap", c.PositionGap, positionGap),
		criterio.Run("sort.field", c.Sort.Field, oneOf(SortFields...)),
		criterio.Run("sort.direction", c.Sort.Direction, oneOf("asc", "desc")),
		criterio.Run("activity.mode", c.Activity.Mode, oneOf(ActivityTable, ActivityFile, ActivityOff)),
		checkInt("tui.title_lines", c.TUI.TitleLines, between(0, 3)), //nolint:mnd // card title lines
		checkInt("tui.body_lines", c.TUI.BodyLines, between(0, 2)),   //nolint:mnd // card body lines
		c.validateStatuses(),
		c.validateActivity(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) validateStatuses() error {
	var errs criterio.FieldErrorsBuilder
	names := c.StatusNames()
	if len(names) < 2 { //nolint:mnd // minimum 2 statuses for a board
		errs = errs.Append("statuses", errors.New("at least 2 statuses are required"))
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			errs = errs.Append(fmt.Sprintf("statuses[%d].name", i), errors.New("is required"))
			continue
		}
		if seen[key] {
			errs = errs.Append(fmt.Sprintf("statuses[%d].name", i), fmt.Errorf("duplicate status %q", n))
		}
		seen[key] = true
	}
	done := strings.ToLower(c.DoneStatus)
	if done == "" {
		errs = errs.Append("done_status", errors.New("is required"))
	} else if len(names) > 0 && !seen[done] {
		errs = errs.Append("done_status", fmt.Errorf("%q is not one of the statuses", c.DoneStatus))
	}
	return errs.ToError()
}

func (c *Config) validateActivity() error {
	if c.Activity.Mode == ActivityFile && c.Activity.File == "" {
		return criterio.NewFieldErrors("activity.file", errors.New("is required when mode is file"))
	}
	return nil
}

// checkInt reports a failed integer check as a field error.
func checkInt(field string, n int, fn func(int) error) error {
	if err := fn(n); err != nil {
		return criterio.NewFieldErrors(field, err)
	}
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("is required")
	}
	return nil
}

func positionGap(n int) error {
	if n < 2 { //nolint:mnd // a gap of 1 leaves no room to insert between neighbors
		return fmt.Errorf("must be at least 2, got %d", n)
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(v string) error {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", "))
		}
		return nil
	}
}

func between(lo, hi int) func(int) error {
	return func(n int) error {
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

// Init writes cfg as a new board in dir. It fails when dir already holds a
// board.
func Init(dir string, cfg *Config) error {
	const dirMode = 0o750

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(absDir, ConfigFileName)); err == nil {
		return clierr.Newf(clierr.BoardAlreadyExists, "board already initialized in %s", absDir).
			WithDetails(map[string]any{"dir": absDir})
	}

	cfg.SetDir(absDir)
	if err := os.MkdirAll(absDir, dirMode); err != nil {
		return fmt.Errorf("creating board directory: %w", err)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Save writes the config to its config file. Concurrent writers are
// serialized through an advisory lock next to the file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return filelock.With(c.ConfigPath()+".lock", func() error {
		tmp := c.ConfigPath() + ".tmp"
		if err := os.WriteFile(tmp, data, fileMode); err != nil {
			return err
		}
		return os.Rename(tmp, c.ConfigPath())
	})
}

// Load reads and validates a config from the given board directory.
func Load(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	path := filepath.Join(absDir, ConfigFileName)
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted source
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.dir = absDir

	// Migrate old config versions forward before validating.
	oldVersion := cfg.Version
	if err := migrate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Version != oldVersion {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("saving migrated config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindDir walks upward from startDir looking for a board directory
// containing config.yml. Returns the absolute path to the board directory.
func FindDir(startDir string) (string, error) {
	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	dir := absStart
	for {
		candidate := filepath.Join(dir, DefaultDir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Join(dir, DefaultDir), nil
		}

		// Also check if we're inside the board directory itself.
		candidate = filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", clierr.New(clierr.BoardNotFound,
				"no task board found (run 'taskboard init' to create one)")
		}
		dir = parent
	}
}
