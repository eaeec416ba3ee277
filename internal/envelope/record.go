package envelope

import (
	"fmt"
	"time"
)

// Record is one load report from a monitored node.
type Record struct {
	ServerID  int    `json:"server_id"`
	Load      int    `json:"load"`
	Timestamp string `json:"timestamp"`
}

// Accepted timestamp layouts. Layouts without a zone are read as UTC, which is
// what Python's datetime.utcnow().isoformat() produces.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Parses the record timestamp
func (r Record) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid timestamp %q", r.Timestamp)
}

// Builds a record stamped with t in RFC 3339 form
func NewRecord(serverID, load int, t time.Time) Record {
	return Record{
		ServerID:  serverID,
		Load:      load,
		Timestamp: t.UTC().Format(time.RFC3339Nano),
	}
}
