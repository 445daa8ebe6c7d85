package model

import (
	"time"

	"gorm.io/datatypes"
)

// Machine represents a registered Arduino device.
// A machine may be known only by alias; the IP column is nullable and
// NULL rows do not collide on the unique index.
type Machine struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	IP            *string        `gorm:"uniqueIndex;size:45" json:"ip"`
	Alias         string         `gorm:"size:100;not null" json:"alias"`
	WakeupPayload datatypes.JSON `gorm:"type:json" json:"wakeup_payload"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// Associations
	Tasks []Task `gorm:"foreignKey:MachineID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

// IPString returns the machine's IP or the empty string when unset.
func (m *Machine) IPString() string {
	if m.IP == nil {
		return ""
	}
	return *m.IP
}
