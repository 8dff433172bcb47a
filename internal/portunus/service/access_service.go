package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

// Decision reasons recorded in the audit log.
const (
	ReasonCardAllowed       = "card_allowed"
	ReasonCardNotAllowed    = "card_not_allowed"
	ReasonUnsupportedFormat = "unsupported_format"
)

// Actuation outcomes recorded alongside a granted decision.
const (
	OutcomeOpened   = "opened"
	OutcomeFault    = "fault"
	OutcomeDoorOpen = "door_open"
	OutcomeBusy     = "busy"
	OutcomeAborted  = "aborted"
)

type Decision struct {
	Granted     bool
	Reason      string
	Key         string
	BitLength   int
	PresentedAt time.Time
	DecidedAt   time.Time
}

type AccessService struct {
	policy     AccessPolicy
	eventStore store.AccessEventStore
	logger     *log.Logger
	now        func() time.Time
}

func NewAccessService(policy AccessPolicy, es store.AccessEventStore, logger *log.Logger) *AccessService {
	return &AccessService{
		policy:     policy,
		eventStore: es,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccessService) Policy() AccessPolicy {
	return s.policy
}

// Decide checks cred against the allow-list.  It has no side effects; the
// caller records the decision once the actuation outcome is known.
func (s *AccessService) Decide(cred wiegand.Credential, presentedAt time.Time) Decision {
	d := Decision{
		Key:         cred.Key(),
		BitLength:   cred.BitLength,
		PresentedAt: presentedAt,
		DecidedAt:   s.now(),
	}
	if s.policy.Permits(cred) {
		d.Granted = true
		d.Reason = ReasonCardAllowed
	} else {
		d.Reason = ReasonCardNotAllowed
	}
	return d
}

// RecordOutcome persists d with the actuation outcome (empty for a denial).
func (s *AccessService) RecordOutcome(ctx context.Context, d Decision, outcome string) {
	sum := sha256.Sum256([]byte(d.Key))
	s.recordEvent(ctx, store.AccessEventRecord{
		PresentedAt: d.PresentedAt,
		BitLength:   d.BitLength,
		CardKeyHash: sum[:],
		Granted:     d.Granted,
		Reason:      d.Reason,
		Outcome:     outcome,
		DecidedAt:   d.DecidedAt,
	})
}

// RecordRejectedFrame persists a frame that never decoded to a credential.
func (s *AccessService) RecordRejectedFrame(ctx context.Context, bitLength int, presentedAt time.Time) {
	s.recordEvent(ctx, store.AccessEventRecord{
		PresentedAt: presentedAt,
		BitLength:   bitLength,
		Reason:      ReasonUnsupportedFormat,
		DecidedAt:   s.now(),
	})
}

// recordEvent writes to the audit log.  Errors are logged, not returned: a
// failed audit write must not hold the door loop.
func (s *AccessService) recordEvent(ctx context.Context, rec store.AccessEventRecord) {
	if s.eventStore == nil {
		return
	}
	if err := s.eventStore.RecordEvent(ctx, rec); err != nil {
		s.logger.Printf("audit write failed (reason=%s): %v", rec.Reason, err)
	}
}

func (s *AccessService) RecentEvents(ctx context.Context, limit int) ([]types.AccessEvent, error) {
	if s.eventStore == nil {
		return []types.AccessEvent{}, nil
	}
	recs, err := s.eventStore.RecentEvents(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]types.AccessEvent, 0, len(recs))
	for _, r := range recs {
		ev := types.AccessEvent{
			EventID:     r.EventID,
			PresentedAt: r.PresentedAt.UTC().Format(time.RFC3339Nano),
			BitLength:   r.BitLength,
			Granted:     r.Granted,
			Reason:      r.Reason,
			Outcome:     r.Outcome,
			DecidedAt:   r.DecidedAt.UTC().Format(time.RFC3339Nano),
		}
		if len(r.CardKeyHash) > 0 {
			ev.CardKeyHash = hex.EncodeToString(r.CardKeyHash)
		}
		out = append(out, ev)
	}
	return out, nil
}
