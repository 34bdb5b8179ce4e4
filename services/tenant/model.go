package tenant

import (
	"time"
)

type TenantStatus string
type MembershipStatus string

const (
	Active    TenantStatus = "ACTIVE"
	Suspended TenantStatus = "SUSPENDED"

	MembershipLinked   MembershipStatus = "LINKED"
	MembershipUnlinked MembershipStatus = "UNLINKED"
)

// Tenant is the billing view of a tenant. CreditBalance never goes negative:
// the only debit path is the single compare-and-decrement in DebitForGeneration.
type Tenant struct {
	ID              string       `gorm:"column:id;primaryKey"`
	Name            string       `gorm:"column:name;type:varchar(255);not null"`
	Slug            string       `gorm:"column:slug;uniqueIndex;not null"`
	WorkspaceKey    string       `gorm:"column:workspace_key"`
	WorkspaceSecret string       `gorm:"column:workspace_secret"`
	CreditBalance   int64        `gorm:"column:credit_balance;not null;default:0"`
	CostMultiplier  int64        `gorm:"column:cost_multiplier;not null;default:1"`
	Status          TenantStatus `gorm:"column:status;type:varchar(50);not null;default:'ACTIVE'"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// Provisioned reports whether the external workspace credential has already
// been recorded for this tenant.
func (t *Tenant) Provisioned() bool {
	return t.WorkspaceKey != ""
}

// Membership links a platform user into a tenant's external workspace.
type Membership struct {
	ID        string           `gorm:"column:id;primaryKey"`
	UserID    string           `gorm:"column:user_id;index;not null"`
	TenantID  string           `gorm:"column:tenant_id;index;not null"`
	MemberRef string           `gorm:"column:member_ref"`
	Status    MembershipStatus `gorm:"column:status;type:varchar(50);not null;default:'LINKED'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
