package models

import "time"

// Represents a monitored server
type Node struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Address     string    `gorm:"uniqueIndex;not null" json:"ip_address"`
	Purpose     string    `json:"purpose"`
	CurrentLoad int       `gorm:"not null" json:"current_load"`
	IsAvailable bool      `gorm:"not null" json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Node) TableName() string {
	return "nodes"
}
