package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscriber is the durable identity a proof or request refers to.
// Subscribers are created on first contact and never deleted.
type Subscriber struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// TierRecord is one entry in a subscriber's tier history. Exactly one
// record per subscriber is active (superseded_at null and not expired)
// at any instant; upgrades append a new record and mark the prior one
// superseded instead of mutating it.
type TierRecord struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	SubscriberID string     `gorm:"index;not null" json:"subscriber_id"`
	Tier         string     `gorm:"not null" json:"tier"`
	ProofID      string     `gorm:"not null" json:"proof_id"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (r *TierRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (TierRecord) TableName() string {
	return "tier_records"
}

// TierStatus is the read-side view the gateway works with: the current
// tier plus the anchor the ledger derives billing periods from. Free
// subscribers have zero StartedAt/ExpiresAt; their periods follow the
// calendar month instead.
type TierStatus struct {
	Tier      Tier      `json:"tier"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
