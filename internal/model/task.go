package model

import "time"

// TaskStatus is the lifecycle state stored for a task.
type TaskStatus string

const (
	StatusIdle    TaskStatus = "idle"
	StatusRunning TaskStatus = "running"
	StatusPaused  TaskStatus = "paused"

	// StatusKill is a command value accepted on task updates. It is never
	// stored; it deletes the task row instead.
	StatusKill TaskStatus = "kill"
)

// ValidStoredStatus reports whether s may be persisted on a task row.
func ValidStoredStatus(s TaskStatus) bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// ActiveStatuses are the states that block machine removal and that
// listing endpoints surface.
var ActiveStatuses = []TaskStatus{StatusRunning, StatusPaused}

// Task represents a named unit of work tracked against a machine.
// At most one task per (machine, task_name) pair exists at any time.
type Task struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	MachineID int64      `gorm:"uniqueIndex:idx_machine_task;not null" json:"machine_id"`
	TaskName  string     `gorm:"uniqueIndex:idx_machine_task;size:100;not null" json:"task_name"`
	Notes     string     `json:"notes"`
	Status    TaskStatus `gorm:"size:10;not null;default:idle" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Associations
	Machine Machine `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
