package models

import "time"

// A user's request for access to a node
type Registration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestIP string    `gorm:"index;not null" json:"request_ip"`
	Nickname  string    `gorm:"not null" json:"nickname"`
	NodeID    uint      `gorm:"index;not null" json:"server_id"`
	CreatedAt time.Time `json:"registration_date"`
}

func (Registration) TableName() string {
	return "registrations"
}
