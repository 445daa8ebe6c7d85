package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/model"
	"arduino-fleet-backend/internal/parse"
)

// newTestStore sets up an isolated in-memory SQLite database. The DSN is
// keyed by test name so the connection pool shares one database per test.
func newTestStore(t *testing.T) Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Machine{}, &model.Task{}))
	return NewGormStore(db)
}

func TestGetOrCreateMachineByIP(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1, created, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "A", m1.Alias)

	// Same IP never creates a duplicate row.
	m2, created, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "B")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m1.ID, m2.ID)
	assert.Equal(t, "A", m2.Alias, "alias is not overwritten by get-or-create itself")

	n, err := s.CountMachines(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateMachineWithoutIP(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Repeated IP-less registrations create distinct rows.
	_, err := s.CreateMachine(ctx, "bench-1")
	require.NoError(t, err)
	_, err = s.CreateMachine(ctx, "bench-1")
	require.NoError(t, err)

	n, err := s.CountMachines(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetOrCreateTaskUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)

	t1, err := s.GetOrCreateTask(ctx, m.ID, "grind", "first")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIdle, t1.Status)

	t2, err := s.GetOrCreateTask(ctx, m.ID, "grind", "second")
	require.NoError(t, err)
	assert.Equal(t, t1.ID, t2.ID)
	assert.Equal(t, "first", t2.Notes, "existing task keeps its notes until explicitly saved")
}

func TestDeleteTaskIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)
	_, err = s.GetOrCreateTask(ctx, m.ID, "grind", "")
	require.NoError(t, err)

	n, err := s.DeleteTask(ctx, m.ID, "grind")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Killing a task that is already gone is not an error.
	n, err = s.DeleteTask(ctx, m.ID, "grind")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMachineByIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)

	byIP, err := s.MachineByIdentifier(ctx, parse.Identifier{Kind: parse.ByIP, IP: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, m.ID, byIP.ID)

	byID, err := s.MachineByIdentifier(ctx, parse.Identifier{Kind: parse.ByID, ID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, "A", byID.Alias)

	_, err = s.MachineByIdentifier(ctx, parse.Identifier{Kind: parse.ByIP, IP: "10.9.9.9"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunningTasksExcludesPausedAndIdle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)

	for name, status := range map[string]model.TaskStatus{
		"grind": model.StatusRunning,
		"brew":  model.StatusPaused,
		"clean": model.StatusIdle,
	} {
		task, err := s.GetOrCreateTask(ctx, m.ID, name, "")
		require.NoError(t, err)
		task.Status = status
		require.NoError(t, s.SaveTask(ctx, task))
	}

	running, err := s.RunningTasks(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "grind", running[0].TaskName)
}

func TestListingsNeverSurfaceIdleTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)

	_, err = s.GetOrCreateTask(ctx, m.ID, "clean", "")
	require.NoError(t, err)

	paused, err := s.GetOrCreateTask(ctx, m.ID, "brew", "")
	require.NoError(t, err)
	paused.Status = model.StatusPaused
	require.NoError(t, s.SaveTask(ctx, paused))

	machines, err := s.ListMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	require.Len(t, machines[0].Tasks, 1)
	assert.Equal(t, "brew", machines[0].Tasks[0].TaskName)

	tasks, err := s.ListActiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "brew", tasks[0].TaskName)
	assert.Equal(t, "A", tasks[0].Machine.Alias)
}

func TestRemoveMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)

	task, err := s.GetOrCreateTask(ctx, m.ID, "grind", "")
	require.NoError(t, err)
	task.Status = model.StatusPaused
	require.NoError(t, s.SaveTask(ctx, task))

	ident := parse.Identifier{Kind: parse.ByIP, IP: "10.0.0.5"}

	// Paused task blocks removal; machine and task remain.
	_, err = s.RemoveMachine(ctx, ident)
	assert.ErrorIs(t, err, ErrActiveTasks)
	n, _ := s.CountMachines(ctx)
	assert.Equal(t, int64(1), n)

	// Kill the task, then removal succeeds with zero idle tasks purged.
	deleted, err := s.DeleteTask(ctx, m.ID, "grind")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	idlePurged, err := s.RemoveMachine(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, int64(0), idlePurged)

	n, _ = s.CountMachines(ctx)
	assert.Equal(t, int64(0), n)
}

func TestRemoveMachinePurgesIdleTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.5", "A")
	require.NoError(t, err)
	_, err = s.GetOrCreateTask(ctx, m.ID, "clean", "")
	require.NoError(t, err)
	_, err = s.GetOrCreateTask(ctx, m.ID, "rinse", "")
	require.NoError(t, err)

	idlePurged, err := s.RemoveMachine(ctx, parse.Identifier{Kind: parse.ByID, ID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), idlePurged)
}

func TestDeleteAllMachines(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, s Store) {
		busy, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.1", "busy")
		require.NoError(t, err)
		task, err := s.GetOrCreateTask(ctx, busy.ID, "grind", "")
		require.NoError(t, err)
		task.Status = model.StatusRunning
		require.NoError(t, s.SaveTask(ctx, task))

		lazy, _, err := s.GetOrCreateMachineByIP(ctx, "10.0.0.2", "lazy")
		require.NoError(t, err)
		_, err = s.GetOrCreateTask(ctx, lazy.ID, "clean", "")
		require.NoError(t, err)
	}

	t.Run("strict mode skips machines with active tasks", func(t *testing.T) {
		s := newTestStore(t)
		seed(t, s)

		removed, skipped, err := s.DeleteAllMachines(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, int64(1), skipped)

		n, _ := s.CountMachines(ctx)
		assert.Equal(t, int64(1), n)
	})

	t.Run("force clean removes everything", func(t *testing.T) {
		s := newTestStore(t)
		seed(t, s)

		removed, skipped, err := s.DeleteAllMachines(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		assert.Equal(t, int64(0), skipped)

		n, _ := s.CountMachines(ctx)
		assert.Equal(t, int64(0), n)
		active, _ := s.CountActiveTasks(ctx)
		assert.Equal(t, int64(0), active)
	})
}
