package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portunus/door/internal/db"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	if rec.PresentedAt.IsZero() {
		rec.PresentedAt = rec.DecidedAt
	}

	presentedMs := rec.PresentedAt.UTC().UnixMilli()
	decidedMs := rec.DecidedAt.UTC().UnixMilli()

	var granted int
	if rec.Granted {
		granted = 1
	}

	var cardKeyHash any
	if len(rec.CardKeyHash) == 32 {
		cardKeyHash = rec.CardKeyHash
	}

	var outcome any
	if rec.Outcome != "" {
		outcome = rec.Outcome
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  event_id, presented_at_ms, bit_length, card_key_hash,
  decision_granted, decision_reason, actuation_outcome, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.EventID, presentedMs, rec.BitLength, cardKeyHash,
			granted, rec.Reason, outcome, decidedMs,
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// RecentEvents reads directly from the pool; only writes go through the
// worker.
func (s *AccessEventStore) RecentEvents(ctx context.Context, limit int) ([]store.AccessEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, presented_at_ms, bit_length, card_key_hash,
       decision_granted, decision_reason, actuation_outcome, decided_at_ms
FROM access_events
ORDER BY decided_at_ms DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentEvents query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessEventRecord
	for rows.Next() {
		var (
			rec         store.AccessEventRecord
			presentedMs int64
			decidedMs   int64
			granted     int
			outcome     sql.NullString
		)
		if err := rows.Scan(
			&rec.EventID, &presentedMs, &rec.BitLength, &rec.CardKeyHash,
			&granted, &rec.Reason, &outcome, &decidedMs,
		); err != nil {
			return nil, fmt.Errorf("RecentEvents scan: %w", err)
		}
		rec.PresentedAt = time.UnixMilli(presentedMs).UTC()
		rec.DecidedAt = time.UnixMilli(decidedMs).UTC()
		rec.Granted = granted == 1
		rec.Outcome = outcome.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentEvents rows: %w", err)
	}
	return out, nil
}

// PruneOlderThan deletes events decided before cutoff and returns the
// number of rows removed.  Uses idx_access_events_time for the range scan.
func (s *AccessEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_events
WHERE decided_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
