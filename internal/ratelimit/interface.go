package ratelimit

import (
	"context"
	"time"
)

// Store keeps per-address quota records. Admit must be a single atomic
// read-modify-write and Sweep must remove every record at once.
type Store interface {
	// Returns the record for address, or nil if there is none
	Get(ctx context.Context, address string) (*Record, error)

	Admit(ctx context.Context, address string, now time.Time, policy Policy) (Decision, error)

	// Gives back one admitted attempt. A record whose count drops to zero
	// is removed; a missing record is left alone.
	Release(ctx context.Context, address string) error

	// Removes all records and reports how many were removed
	Sweep(ctx context.Context) (int64, error)
}

// Quota state of one source address
type Record struct {
	Address      string
	RequestCount int
	WindowStart  time.Time
	LastRequest  time.Time
}

// Policy is what a store needs to evaluate one admit.
type Policy struct {
	Limit  int
	Window time.Duration

	// When false, a record whose window has expired keeps counting against
	// its original window start and is only cleared by Sweep.
	ResetExpired bool
}

// Outcome of one admit
type Decision struct {
	Allowed     bool
	Count       int
	WindowStart time.Time
}
