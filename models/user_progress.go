package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlayerProgress tracks the score and activity streak for each player (denormalized for leaderboard reads)
type PlayerProgress struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // identity provider's user id

	// Score
	TotalPoints int64 `json:"total_points" gorm:"not null;default:0"`

	// Global activity streak: consecutive calendar days with at least one claim
	ActivityStreak int        `json:"activity_streak" gorm:"not null;default:0"`
	LastVisitAt    *time.Time `json:"last_visit_at,omitempty"`

	// Profile
	Username           string     `json:"username"`
	UsernameKey        *string    `json:"-" gorm:"uniqueIndex"` // case-folded username, NULL until set
	LastUsernameChange *time.Time `json:"last_username_change,omitempty"`

	// Per-player radius overrides (nil = use global settings)
	DetectionRadius *float64 `json:"detection_radius,omitempty"`
	ClaimRadius     *float64 `json:"claim_radius,omitempty"`

	Timestamps
}

func (p *PlayerProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
