package payment

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending              Status = "PENDING"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusCompleted            Status = "COMPLETED"
	StatusFailed               Status = "FAILED"
)

// Terminal reports whether the status may never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PaymentAttempt tracks one mobile-money collection attempt. The owning
// workflow instance is the sole writer while it is open; the record is never
// deleted. RawCallback keeps the provider's webhook payload opaque for audit.
type PaymentAttempt struct {
	ID          string         `gorm:"column:id;primaryKey"`
	TenantID    string         `gorm:"column:tenant_id;index;not null"`
	Reference   string         `gorm:"column:reference"`
	Amount      int64          `gorm:"column:amount;not null"`
	PayerPhone  string         `gorm:"column:payer_phone;not null"`
	ProviderRef string         `gorm:"column:provider_ref;index"`
	Status      Status         `gorm:"column:status;type:varchar(50);not null;default:'PENDING'"`
	Reason      string         `gorm:"column:reason"`
	RawCallback datatypes.JSON `gorm:"column:raw_callback;type:jsonb"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
