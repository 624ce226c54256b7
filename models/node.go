package models

import (
	"time"

	"gorm.io/gorm"
)

// Node is a claimable point of interest shared by all players.
// A purged node is soft-deleted so claim history referencing it survives.
type Node struct {
	ID        string         `gorm:"primaryKey;type:varchar(128)" json:"id"` // slug of the name
	Name      string         `gorm:"not null" json:"name"`
	Latitude  float64        `gorm:"not null" json:"lat"`
	Longitude float64        `gorm:"not null" json:"lng"`
	Points    int64          `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
