package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/model"
	"arduino-fleet-backend/internal/parse"
)

// ErrActiveTasks is returned when a machine removal is refused because the
// machine still has running or paused tasks.
var ErrActiveTasks = errors.New("machine has active tasks")

// Store defines the interface for all database operations on the registry.
type Store interface {
	DB() *gorm.DB

	MachineByIdentifier(ctx context.Context, ident parse.Identifier) (*model.Machine, error)
	MachineWithActiveTasks(ctx context.Context, ident parse.Identifier) (*model.Machine, error)
	GetOrCreateMachineByIP(ctx context.Context, ip, alias string) (*model.Machine, bool, error)
	CreateMachine(ctx context.Context, alias string) (*model.Machine, error)
	SaveMachine(ctx context.Context, m *model.Machine) error
	SetWakeupPayload(ctx context.Context, machineID int64, payload datatypes.JSON) error

	GetOrCreateTask(ctx context.Context, machineID int64, taskName, notes string) (*model.Task, error)
	SaveTask(ctx context.Context, t *model.Task) error
	DeleteTask(ctx context.Context, machineID int64, taskName string) (int64, error)
	RunningTasks(ctx context.Context, machineID int64) ([]model.Task, error)

	ListMachines(ctx context.Context) ([]model.Machine, error)
	ListActiveTasks(ctx context.Context) ([]model.Task, error)

	RemoveMachine(ctx context.Context, ident parse.Identifier) (int64, error)
	DeleteAllMachines(ctx context.Context, forceClean bool) (removed, skipped int64, err error)

	CountMachines(ctx context.Context) (int64, error)
	CountActiveTasks(ctx context.Context) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// MachineByIdentifier resolves a machine by numeric ID or IP, depending on
// how the identifier was tagged. Returns gorm.ErrRecordNotFound when no
// machine matches.
func (s *gormStore) MachineByIdentifier(ctx context.Context, ident parse.Identifier) (*model.Machine, error) {
	var m model.Machine
	q := s.db.WithContext(ctx)
	var err error
	switch ident.Kind {
	case parse.ByID:
		err = q.First(&m, ident.ID).Error
	case parse.ByIP:
		err = q.First(&m, "ip = ?", ident.IP).Error
	default:
		return nil, fmt.Errorf("unknown identifier kind %d", ident.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MachineWithActiveTasks loads a machine with its task list filtered to
// running/paused entries. Idle tasks are never surfaced in listings.
func (s *gormStore) MachineWithActiveTasks(ctx context.Context, ident parse.Identifier) (*model.Machine, error) {
	m, err := s.MachineByIdentifier(ctx, ident)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status IN ?", m.ID, model.ActiveStatuses).
		Order("task_name").
		Find(&m.Tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load tasks for machine %d: %w", m.ID, err)
	}
	return m, nil
}

// GetOrCreateMachineByIP returns the machine registered under ip, creating
// it with the given alias when it does not exist yet. The boolean reports
// whether a new row was created.
func (s *gormStore) GetOrCreateMachineByIP(ctx context.Context, ip, alias string) (*model.Machine, bool, error) {
	var m model.Machine
	res := s.db.WithContext(ctx).
		Where("ip = ?", ip).
		Attrs(model.Machine{IP: &ip, Alias: alias, WakeupPayload: datatypes.JSON("{}")}).
		FirstOrCreate(&m)
	if res.Error != nil {
		return nil, false, fmt.Errorf("get-or-create machine %q: %w", ip, res.Error)
	}
	return &m, res.RowsAffected > 0, nil
}

// CreateMachine registers a machine without an IP. Every call creates a
// distinct row; NULL IPs do not participate in the uniqueness constraint.
func (s *gormStore) CreateMachine(ctx context.Context, alias string) (*model.Machine, error) {
	m := model.Machine{Alias: alias, WakeupPayload: datatypes.JSON("{}")}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create machine %q: %w", alias, err)
	}
	return &m, nil
}

func (s *gormStore) SaveMachine(ctx context.Context, m *model.Machine) error {
	return s.db.WithContext(ctx).Save(m).Error
}

// SetWakeupPayload replaces the stored wakeup blob wholesale.
func (s *gormStore) SetWakeupPayload(ctx context.Context, machineID int64, payload datatypes.JSON) error {
	res := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Where("id = ?", machineID).
		Update("wakeup_payload", payload)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetOrCreateTask returns the task keyed by (machineID, taskName), creating
// it with default status idle when absent.
func (s *gormStore) GetOrCreateTask(ctx context.Context, machineID int64, taskName, notes string) (*model.Task, error) {
	var t model.Task
	res := s.db.WithContext(ctx).
		Where("machine_id = ? AND task_name = ?", machineID, taskName).
		Attrs(model.Task{MachineID: machineID, TaskName: taskName, Notes: notes, Status: model.StatusIdle}).
		FirstOrCreate(&t)
	if res.Error != nil {
		return nil, fmt.Errorf("get-or-create task %q for machine %d: %w", taskName, machineID, res.Error)
	}
	return &t, nil
}

func (s *gormStore) SaveTask(ctx context.Context, t *model.Task) error {
	return s.db.WithContext(ctx).Save(t).Error
}

// DeleteTask removes the (machine, taskName) task if it exists and reports
// how many rows were deleted (0 or 1). A missing task is not an error.
func (s *gormStore) DeleteTask(ctx context.Context, machineID int64, taskName string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("machine_id = ? AND task_name = ?", machineID, taskName).
		Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete task %q for machine %d: %w", taskName, machineID, res.Error)
	}
	return res.RowsAffected, nil
}

// RunningTasks returns only the running tasks of a machine. Paused and
// idle entries are intentionally excluded from the status query.
func (s *gormStore) RunningTasks(ctx context.Context, machineID int64) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status = ?", machineID, model.StatusRunning).
		Order("task_name").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list running tasks for machine %d: %w", machineID, err)
	}
	return tasks, nil
}

// ListMachines returns all machines with their active (running/paused)
// tasks preloaded.
func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	err := s.db.WithContext(ctx).
		Preload("Tasks", "status IN ?", model.ActiveStatuses).
		Order("id").
		Find(&machines).Error
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	return machines, nil
}

// ListActiveTasks returns every running/paused task across all machines
// with the owning machine loaded.
func (s *gormStore) ListActiveTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Preload("Machine").
		Where("status IN ?", model.ActiveStatuses).
		Order("machine_id, task_name").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	return tasks, nil
}

func (s *gormStore) activeTaskCount(tx *gorm.DB, machineID int64) (int64, error) {
	var n int64
	err := tx.Model(&model.Task{}).
		Where("machine_id = ? AND status IN ?", machineID, model.ActiveStatuses).
		Count(&n).Error
	return n, err
}

// RemoveMachine deletes a machine and its idle tasks, refusing with
// ErrActiveTasks when the machine has running or paused tasks. It reports
// how many idle tasks were purged alongside the machine.
func (s *gormStore) RemoveMachine(ctx context.Context, ident parse.Identifier) (int64, error) {
	m, err := s.MachineByIdentifier(ctx, ident)
	if err != nil {
		return 0, err
	}

	var idleDeleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.activeTaskCount(tx, m.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveTasks
		}

		res := tx.Where("machine_id = ? AND status = ?", m.ID, model.StatusIdle).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete idle tasks for machine %d: %w", m.ID, res.Error)
		}
		idleDeleted = res.RowsAffected

		if err := tx.Delete(&model.Machine{}, m.ID).Error; err != nil {
			return fmt.Errorf("delete machine %d: %w", m.ID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return idleDeleted, nil
}

// DeleteAllMachines clears the registry. With forceClean every task and
// machine goes unconditionally; otherwise machines with active tasks are
// skipped and only fully idle machines are purged.
func (s *gormStore) DeleteAllMachines(ctx context.Context, forceClean bool) (removed, skipped int64, err error) {
	if forceClean {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("1 = 1").Delete(&model.Task{}).Error; err != nil {
				return fmt.Errorf("delete all tasks: %w", err)
			}
			res := tx.Where("1 = 1").Delete(&model.Machine{})
			if res.Error != nil {
				return fmt.Errorf("delete all machines: %w", res.Error)
			}
			removed = res.RowsAffected
			return nil
		})
		return removed, 0, err
	}

	var machines []model.Machine
	if err := s.db.WithContext(ctx).Find(&machines).Error; err != nil {
		return 0, 0, fmt.Errorf("list machines: %w", err)
	}

	for i := range machines {
		m := &machines[i]
		active, err := s.activeTaskCount(s.db.WithContext(ctx), m.ID)
		if err != nil {
			return removed, skipped, err
		}
		if active > 0 {
			skipped++
			continue
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("machine_id = ? AND status = ?", m.ID, model.StatusIdle).
				Delete(&model.Task{}).Error; err != nil {
				return err
			}
			return tx.Delete(&model.Machine{}, m.ID).Error
		})
		if err != nil {
			return removed, skipped, fmt.Errorf("delete machine %d: %w", m.ID, err)
		}
		removed++
	}
	return removed, skipped, nil
}

func (s *gormStore) CountMachines(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Machine{}).Count(&n).Error
	return n, err
}

func (s *gormStore) CountActiveTasks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("status IN ?", model.ActiveStatuses).
		Count(&n).Error
	return n, err
}
