package models

// Per-address registration counter. Times are unix milliseconds.
type QuotaRecord struct {
	Address       string `gorm:"primaryKey" json:"ip_address"`
	RequestCount  int    `gorm:"not null" json:"request_count"`
	WindowStartMs int64  `gorm:"not null" json:"window_start_ms"`
	LastRequestMs int64  `gorm:"not null" json:"last_request_ms"`
}

func (QuotaRecord) TableName() string {
	return "quota_records"
}
