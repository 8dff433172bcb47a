package store

import (
	"context"
	"time"
)

// AccessEventRecord captures a single card presentation for the audit log.
// The allow-list key itself is never stored; CardKeyHash is its SHA-256
// and is nil for frames that did not decode to a credential.
type AccessEventRecord struct {
	EventID     string
	PresentedAt time.Time
	BitLength   int
	CardKeyHash []byte
	Granted     bool
	Reason      string
	Outcome     string // actuation result; empty when nothing was actuated
	DecidedAt   time.Time
}

// AccessEventStore persists access decisions as an append-only audit log.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error
	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]AccessEventRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
