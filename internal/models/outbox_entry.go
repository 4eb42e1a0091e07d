package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxStatus tracks the lifecycle of a settlement entry.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEntry is a durable post-generation settlement job. The request path
// enqueues one entry per successful generation; the dispatcher debits the
// ledger, writes the audit row, and emits analytics from it. This replaces a
// fire-and-forget continuation so a crash cannot drop the debit.
type OutboxEntry struct {
	BaseModel

	Kind        string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Status      OutboxStatus   `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	NextAttempt time.Time      `gorm:"index" json:"next_attempt"`
}
