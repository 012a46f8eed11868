package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
)

func TestInitAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)

	cfg := NewDefault("demo")
	require.NoError(t, Init(dir, cfg))
	assert.Equal(t, filepath.Join(dir, DefaultDatabase), cfg.DatabasePath())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.Board.Name)
	assert.Equal(t, DefaultPositionGap, loaded.PositionGap)
	assert.Equal(t, []string{"Backlog", "Todo", "In Progress", "Review", "Done"}, loaded.StatusNames())
}

func TestInit_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, NewDefault("demo")))

	err := Init(dir, NewDefault("again"))
	require.Error(t, err)
	assert.Equal(t, clierr.BoardAlreadyExists, clierr.CodeOf(err))
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_CollectsFieldErrors(t *testing.T) {
	cfg := NewDefault("demo")
	cfg.PositionGap = 1
	cfg.Sort.Field = "priority"
	cfg.DoneStatus = "Shipped"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"position_gap", "sort.field", "done_status"}, fields)
}

func TestValidate_DuplicateStatusIgnoresCase(t *testing.T) {
	cfg := NewDefault("demo")
	cfg.Statuses = append(cfg.Statuses, StatusConfig{Name: "todo"})
	assert.Error(t, cfg.Validate())
}

func TestLoad_MigratesV1(t *testing.T) {
	dir := t.TempDir()
	v1 := `version: 1
board:
  name: legacy
database: legacy.db
sort:
  field: title
  direction: desc
statuses:
  - Todo
  - Done
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(v1), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, DefaultDoneStatus, cfg.DoneStatus)
	assert.Equal(t, DefaultPositionGap, cfg.PositionGap)
	assert.Equal(t, ActivityTable, cfg.Activity.Mode)

	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, again.Version)
}

func TestLoad_NewerVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 99\n"), 0o600))

	_, err := Load(dir)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestFindDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Init(filepath.Join(root, DefaultDir), NewDefault("demo")))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	found, err := FindDir(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultDir), found)
}
