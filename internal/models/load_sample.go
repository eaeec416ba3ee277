package models

import "time"

// One load observation reported by a node. RecordedAtMs is the node's own
// timestamp in unix milliseconds and is the ordering key for retention.
// Sub-millisecond precision is dropped; ties fall back to insert order.
type LoadSample struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	NodeID       uint  `gorm:"not null;index:idx_load_samples_node_time,priority:1" json:"node_id"`
	LoadValue    int   `gorm:"not null" json:"load_value"`
	RecordedAtMs int64 `gorm:"not null;index:idx_load_samples_node_time,priority:2" json:"recorded_at_ms"`
}

func (s LoadSample) RecordedAt() time.Time {
	return time.UnixMilli(s.RecordedAtMs).UTC()
}

func (LoadSample) TableName() string {
	return "load_samples"
}
