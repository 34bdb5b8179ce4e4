package post

import (
	"time"

	"gorm.io/datatypes"
)

type Status string
type Recurrence string
type TemplateKind string
type MediaKind string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusPublished Status = "PUBLISHED"
	StatusRecurring Status = "RECURRING"
	StatusFailed    Status = "FAILED"

	RecurrenceNone    Recurrence = "NONE"
	RecurrenceDaily   Recurrence = "DAILY"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"

	TemplateGeneric    TemplateKind = "GENERIC"
	TemplateRealEstate TemplateKind = "REAL_ESTATE"
	TemplateSports     TemplateKind = "SPORTS"

	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

// Terminal reports whether the distribution status may never transition again.
// QUEUED and RECURRING are re-entrant: the dispatch sweep picks them up for
// another cycle.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Post is one distributable content item. The owning workflow instance is the
// sole writer of Status while it is open. GeneratedMediaRef is set at most
// once per raw-media input.
type Post struct {
	ID                string         `gorm:"column:id;primaryKey"`
	TenantID          string         `gorm:"column:tenant_id;index;not null"`
	CampaignID        string         `gorm:"column:campaign_id;index"`
	Code              string         `gorm:"column:code"`
	Body              string         `gorm:"column:body;type:text"`
	TemplateKind      TemplateKind   `gorm:"column:template_kind;type:varchar(50);not null;default:'GENERIC'"`
	CreativeData      datatypes.JSON `gorm:"column:creative_data;type:jsonb"`
	MediaKind         MediaKind      `gorm:"column:media_kind;type:varchar(20);not null;default:'IMAGE'"`
	RawMediaRef       string         `gorm:"column:raw_media_ref"`
	GeneratedMediaRef string         `gorm:"column:generated_media_ref"`
	// GenerationChargedAt marks that the credit debit for this post's
	// generation already landed. Stamped in the same transaction as the debit,
	// so a retried generation never charges a second time.
	GenerationChargedAt *time.Time `gorm:"column:generation_charged_at"`
	Status            Status         `gorm:"column:status;type:varchar(50);not null;default:'PENDING'"`
	StatusReason      string         `gorm:"column:status_reason"`
	RequiresApproval  bool           `gorm:"column:requires_approval;not null;default:false"`
	ApprovedAt        *time.Time     `gorm:"column:approved_at"`
	ApprovedBy        string         `gorm:"column:approved_by"`
	ScheduledAt       *time.Time     `gorm:"column:scheduled_at;index"`
	Recurrence        Recurrence     `gorm:"column:recurrence;type:varchar(20);not null;default:'NONE'"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// Approved reports whether an approval decision has been recorded, regardless
// of which path recorded it.
func (p *Post) Approved() bool {
	return p.ApprovedAt != nil
}

// PublicationAttempt is the append-only publication history. One row per
// destination per cycle, so operators can reconstruct the attempt sequence
// without inspecting workflow-engine internals.
type PublicationAttempt struct {
	ID        string    `gorm:"column:id;primaryKey"`
	PostID    string    `gorm:"column:post_id;index;not null"`
	Channel   string    `gorm:"column:channel;type:varchar(50);not null"`
	Outcome   string    `gorm:"column:outcome;type:varchar(50);not null"`
	Detail    string    `gorm:"column:detail"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

const (
	ChannelAuto   = "AUTO"
	ChannelNotify = "NOTIFY"

	OutcomeDelivered = "DELIVERED"
	OutcomeFailed    = "FAILED"
)
