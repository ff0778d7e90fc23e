package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{"STORE_DRIVER", "STORE_PATH", "REDIS_ADDR", "LOG_LEVEL", "FOCUSFLOW_CONFIG", "TZ_NAME"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	return &harness{dbPath: filepath.Join(dir, "tasks.db")}
}

// run executes one command line against the harness database.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := NewRoot(&Flags{}, "test")
	app.Writer = &out
	app.ErrWriter = io.Discard

	argv := append([]string{"focusflow", "--store", "sqlite", "--store-path", h.dbPath}, args...)
	err := app.Run(context.Background(), argv)
	return out.String(), err
}

func TestTaskCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "add", "--title", "Essay", "--due", "2026-03-20", "--priority", "high")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	_, err = h.run(t, "add", "--title", "Reading", "--due", "2026-03-18", "-p", "low", "-d", "chapter 3")
	require.NoError(t, err)

	out, err = h.run(t, "ls")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], "Reading", "date order puts the earlier task first")
	assert.Contains(t, lines[2], "Essay")

	out, err = h.run(t, "ls", "--sort", "priority")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[1], "Essay")

	out, err = h.run(t, "toggle", id)
	require.NoError(t, err)
	assert.Equal(t, "completed\n", out)

	out, err = h.run(t, "ls", "--filter", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "Essay")
	assert.NotContains(t, out, "Reading")

	out, err = h.run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Total\s+2`, out)
	assert.Regexp(t, `Completed\s+1`, out)
	assert.Regexp(t, `Progress\s+50%`, out)

	out, err = h.run(t, "rm", id)
	require.NoError(t, err)
	assert.Equal(t, "deleted\n", out)

	out, err = h.run(t, "ls", "--filter", "completed")
	require.NoError(t, err)
	assert.Equal(t, "No tasks found\n", out)
}

func TestAdd_Invalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "add", "--title", "Essay", "--due", "someday")
	require.ErrorIs(t, err, model.ErrInvalidTask)
	assert.Contains(t, err.Error(), "dueDate")

	_, err = h.run(t, "add", "--title", "Essay", "--due", "2026-03-20", "--priority", "urgent")
	require.ErrorIs(t, err, model.ErrInvalidTask)
	assert.Contains(t, err.Error(), "priority")

	out, err := h.run(t, "ls")
	require.NoError(t, err)
	assert.Equal(t, "No tasks found\n", out)
}

func TestToggle_Unknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "toggle", "missing")
	require.ErrorIs(t, err, model.ErrTaskNotFound)

	_, err = h.run(t, "toggle")
	require.ErrorContains(t, err, "usage")
}

func TestRm_UnknownIsFine(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "rm", "missing")
	require.NoError(t, err)
	assert.Equal(t, "deleted\n", out)
}

func TestLs_BadMode(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "ls", "--filter", "someday")
	require.Error(t, err)

	_, err = h.run(t, "ls", "--sort", "colour")
	require.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	newHarness(t)

	var out bytes.Buffer
	app := NewRoot(&Flags{}, "test")
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(context.Background(), []string{"focusflow", "--store", "postgres", "ls"})
	require.ErrorContains(t, err, "invalid config")
}
