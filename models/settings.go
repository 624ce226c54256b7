package models

import "time"

// GlobalSettingsID is the primary key of the single settings row.
const GlobalSettingsID = 1

// GlobalSettings holds the admin-tunable radii applied to every player without an override.
type GlobalSettings struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	DetectionRadius float64   `gorm:"not null" json:"detection_radius"`
	ClaimRadius     float64   `gorm:"not null" json:"claim_radius"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
