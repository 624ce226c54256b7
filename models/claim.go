package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimRecord is the per (player, node) claim state.
// Streak > 0 implies LastClaimAt is set.
type ClaimRecord struct {
	PlayerID    string     `gorm:"primaryKey;type:varchar(128)" json:"player_id"`
	NodeID      string     `gorm:"primaryKey;type:varchar(128);index" json:"node_id"`
	LastClaimAt *time.Time `json:"last_claim_at,omitempty"`
	Streak      int        `gorm:"not null;default:0" json:"streak"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

type ClaimEventKind string

const (
	ClaimEventClaim       ClaimEventKind = "claim"
	ClaimEventAdminStreak ClaimEventKind = "admin_streak"
)

// ClaimEvent is an append-only ledger row for every point award.
// The partial unique index makes a second regular claim of the same node on
// the same calendar day fail at the database, even across processes.
type ClaimEvent struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID   string         `gorm:"not null;index;uniqueIndex:idx_claim_once_per_day,where:kind = 'claim'" json:"player_id"`
	NodeID     string         `gorm:"not null;uniqueIndex:idx_claim_once_per_day,where:kind = 'claim'" json:"node_id"`
	ClaimDay   string         `gorm:"type:varchar(10);not null;uniqueIndex:idx_claim_once_per_day,where:kind = 'claim'" json:"claim_day"` // YYYY-MM-DD in the claim time zone
	Kind       ClaimEventKind `gorm:"type:varchar(16);not null" json:"kind"`
	Streak     int            `json:"streak"`
	Multiplier float64        `json:"multiplier"`
	Points     int64          `gorm:"not null" json:"points"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (e *ClaimEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
