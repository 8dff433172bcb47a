package service_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestAccessService builds an AccessService backed by the in-memory store,
// returning the service and the store so tests can inspect recorded events.
func newTestAccessService(keys ...string) (*service.AccessService, *memory.AccessEventStore) {
	es := memory.NewAccessEventStore()
	svc := service.NewAccessService(service.NewAccessPolicy(keys), es, silentLogger())
	return svc, es
}

func cred26(fc, cc uint64) wiegand.Credential {
	return wiegand.Credential{FacilityCode: fc, CardCode: cc, BitLength: 26}
}

// ── Policy ───────────────────────────────────────────────────────────────────

func TestPolicy_PermitsExactKey(t *testing.T) {
	p := service.NewAccessPolicy([]string{"13", "4211"})

	if !p.Permits(cred26(1, 3)) {
		t.Error("expected FC=1 CC=3 (key 13) to be permitted")
	}
	if !p.Permits(cred26(42, 11)) {
		t.Error("expected FC=42 CC=11 (key 4211) to be permitted")
	}
	if p.Permits(cred26(1, 4)) {
		t.Error("expected key 14 to be denied")
	}
	if p.Size() != 2 {
		t.Errorf("Size = %d, want 2", p.Size())
	}
}

func TestPolicy_NoLeadingZeroNormalisation(t *testing.T) {
	p := service.NewAccessPolicy([]string{"0013", "013"})

	if p.Permits(cred26(1, 3)) {
		t.Error("padded allow-list entries must not match key 13")
	}
}

func TestPolicy_KeyIsPlainConcatenation(t *testing.T) {
	// FC=1 CC=23 and FC=12 CC=3 both render as "123".
	p := service.NewAccessPolicy([]string{"123"})

	if !p.Permits(cred26(1, 23)) || !p.Permits(cred26(12, 3)) {
		t.Error("expected both credentials rendering to 123 to be permitted")
	}
}

func TestPolicy_EmptyDeniesEverything(t *testing.T) {
	p := service.NewAccessPolicy(nil)
	if p.Permits(cred26(0, 0)) {
		t.Error("empty allow-list must deny")
	}
}

// ── Decide ───────────────────────────────────────────────────────────────────

func TestDecide_CardAllowed(t *testing.T) {
	svc, es := newTestAccessService("13")
	presented := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	d := svc.Decide(cred26(1, 3), presented)

	if !d.Granted {
		t.Error("expected granted=true for allowed card")
	}
	if d.Reason != service.ReasonCardAllowed {
		t.Errorf("expected reason=card_allowed, got %q", d.Reason)
	}
	if d.Key != "13" || d.BitLength != 26 {
		t.Errorf("unexpected key/length: %q/%d", d.Key, d.BitLength)
	}
	if !d.PresentedAt.Equal(presented) {
		t.Errorf("PresentedAt = %v, want %v", d.PresentedAt, presented)
	}
	if d.DecidedAt.IsZero() {
		t.Error("expected decided_at to be set")
	}
	if n := len(es.Events()); n != 0 {
		t.Errorf("Decide must not record; got %d events", n)
	}
}

func TestDecide_CardDenied(t *testing.T) {
	svc, _ := newTestAccessService("13")

	d := svc.Decide(cred26(1, 4), time.Now())

	if d.Granted {
		t.Error("expected granted=false for denied card")
	}
	if d.Reason != service.ReasonCardNotAllowed {
		t.Errorf("expected reason=card_not_allowed, got %q", d.Reason)
	}
}

// ── Event recording ──────────────────────────────────────────────────────────

func TestRecordOutcome_StoresHashNotKey(t *testing.T) {
	svc, es := newTestAccessService("13")
	ctx := context.Background()

	d := svc.Decide(cred26(1, 3), time.Now())
	svc.RecordOutcome(ctx, d, service.OutcomeOpened)

	events := es.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	want := sha256.Sum256([]byte("13"))
	if !bytes.Equal(ev.CardKeyHash, want[:]) {
		t.Errorf("CardKeyHash = %x, want %x", ev.CardKeyHash, want[:])
	}
	if !ev.Granted || ev.Reason != service.ReasonCardAllowed || ev.Outcome != service.OutcomeOpened {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestRecordOutcome_DenialHasNoOutcome(t *testing.T) {
	svc, es := newTestAccessService()

	d := svc.Decide(cred26(9, 9), time.Now())
	svc.RecordOutcome(context.Background(), d, "")

	events := es.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Granted || events[0].Outcome != "" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestRecordRejectedFrame(t *testing.T) {
	svc, es := newTestAccessService("13")
	presented := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	svc.RecordRejectedFrame(context.Background(), 12, presented)

	events := es.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Reason != service.ReasonUnsupportedFormat {
		t.Errorf("expected reason=unsupported_format, got %q", ev.Reason)
	}
	if ev.BitLength != 12 || ev.Granted || ev.CardKeyHash != nil {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.PresentedAt.Equal(presented) {
		t.Errorf("PresentedAt = %v, want %v", ev.PresentedAt, presented)
	}
}

type failingStore struct{ store.AccessEventStore }

func (failingStore) RecordEvent(context.Context, store.AccessEventRecord) error {
	return errors.New("disk full")
}

func TestRecordOutcome_AuditFailureIsLoggedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	svc := service.NewAccessService(
		service.NewAccessPolicy([]string{"13"}),
		failingStore{},
		log.New(&buf, "", 0),
	)

	d := svc.Decide(cred26(1, 3), time.Now())
	svc.RecordOutcome(context.Background(), d, service.OutcomeOpened)

	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected audit failure to be logged, got %q", buf.String())
	}
}

func TestRecentEvents_WireForm(t *testing.T) {
	svc, _ := newTestAccessService("13")
	ctx := context.Background()

	svc.RecordRejectedFrame(ctx, 40, time.Now())
	svc.RecordOutcome(ctx, svc.Decide(cred26(1, 3), time.Now()), service.OutcomeOpened)

	got, err := svc.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}

	newest := got[0]
	sum := sha256.Sum256([]byte("13"))
	if newest.CardKeyHash != hex.EncodeToString(sum[:]) {
		t.Errorf("CardKeyHash = %q", newest.CardKeyHash)
	}
	if newest.Outcome != service.OutcomeOpened {
		t.Errorf("Outcome = %q", newest.Outcome)
	}
	if _, err := time.Parse(time.RFC3339Nano, newest.DecidedAt); err != nil {
		t.Errorf("DecidedAt %q not RFC3339: %v", newest.DecidedAt, err)
	}
	if got[1].CardKeyHash != "" {
		t.Errorf("rejected frame should have no hash, got %q", got[1].CardKeyHash)
	}
	for i, ev := range got {
		if ev.EventID == "" {
			t.Errorf("event %d has no event_id", i)
		}
	}
	if got[0].EventID == got[1].EventID {
		t.Errorf("event ids collide: %q", got[0].EventID)
	}
}

func TestRecentEvents_NoStore(t *testing.T) {
	svc := service.NewAccessService(service.NewAccessPolicy(nil), nil, silentLogger())

	got, err := svc.RecentEvents(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty slice, got %d", len(got))
	}
	// Recording without a store is a no-op.
	svc.RecordRejectedFrame(context.Background(), 26, time.Now())
}
