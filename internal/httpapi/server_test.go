package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/door/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/types"
)

type stubDoor struct {
	status    types.DoorStatus
	events    []types.AccessEvent
	err       error
	lastLimit int
}

func (s *stubDoor) Status() types.DoorStatus { return s.status }

func (s *stubDoor) RecentEvents(_ context.Context, limit int) ([]types.AccessEvent, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.events) {
		return s.events[:limit], nil
	}
	return s.events, nil
}

// newTestServer wires the API over door and returns an httptest.Server whose
// URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, door *stubDoor) *httptest.Server {
	t.Helper()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: log.New(io.Discard, "", 0),
		Addr:   ":0",
		Door:   door,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url, accept string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sampleStatus() types.DoorStatus {
	return types.DoorStatus{
		OK:             true,
		State:          "fault",
		FaultAsserted:  true,
		Cycles:         7,
		Faults:         2,
		Frames:         12,
		Granted:        8,
		Denied:         3,
		Anomalies:      1,
		EnabledLengths: []int{26, 34},
		AllowListSize:  4,
		ServerTime:     "2026-02-15T12:00:00Z",
	}
}

// ── Status ───────────────────────────────────────────────────────────────────

func TestStatus_JSON(t *testing.T) {
	ts := newTestServer(t, &stubDoor{status: sampleStatus()})

	resp := get(t, ts.URL+"/v1/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var st types.DoorStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if st.State != "fault" || !st.FaultAsserted {
		t.Errorf("unexpected state %q fault=%v", st.State, st.FaultAsserted)
	}
	if st.Cycles != 7 || st.Granted != 8 || st.Denied != 3 {
		t.Errorf("unexpected counters %+v", st)
	}
	if len(st.EnabledLengths) != 2 || st.EnabledLengths[1] != 34 {
		t.Errorf("enabled_lengths = %v", st.EnabledLengths)
	}
}

func TestStatus_Protobuf(t *testing.T) {
	ts := newTestServer(t, &stubDoor{status: sampleStatus()})

	resp := get(t, ts.URL+"/v1/status", "application/x-protobuf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("Content-Type = %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	fields := msg.GetFields()
	if got := fields["state"].GetStringValue(); got != "fault" {
		t.Errorf("state = %q", got)
	}
	if got := fields["cycles"].GetNumberValue(); got != 7 {
		t.Errorf("cycles = %v", got)
	}
	if !fields["fault_asserted"].GetBoolValue() {
		t.Error("expected fault_asserted=true")
	}
	lengths := fields["enabled_lengths"].GetListValue().GetValues()
	if len(lengths) != 2 || lengths[0].GetNumberValue() != 26 {
		t.Errorf("enabled_lengths = %v", lengths)
	}
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &stubDoor{status: sampleStatus()})

	resp, err := http.Post(ts.URL+"/v1/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

// ── Events ───────────────────────────────────────────────────────────────────

func sampleEvents() []types.AccessEvent {
	return []types.AccessEvent{
		{EventID: "b", BitLength: 26, Granted: true, Reason: "card_allowed", Outcome: "opened", CardKeyHash: "ab"},
		{EventID: "a", BitLength: 12, Reason: "unsupported_format"},
	}
}

func TestEvents_JSONDefaultLimit(t *testing.T) {
	door := &stubDoor{events: sampleEvents()}
	ts := newTestServer(t, door)

	resp := get(t, ts.URL+"/v1/events", "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out types.EventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.OK || len(out.Events) != 2 {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.Events[0].Outcome != "opened" || out.Events[1].Outcome != "" {
		t.Errorf("unexpected events %+v", out.Events)
	}
	if door.lastLimit != 50 {
		t.Errorf("limit = %d, want default 50", door.lastLimit)
	}
}

func TestEvents_LimitClamped(t *testing.T) {
	door := &stubDoor{events: sampleEvents()}
	ts := newTestServer(t, door)

	resp := get(t, ts.URL+"/v1/events?limit=100000", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if door.lastLimit != 500 {
		t.Errorf("limit = %d, want clamp to 500", door.lastLimit)
	}
}

func TestEvents_BadLimit(t *testing.T) {
	ts := newTestServer(t, &stubDoor{})

	for _, q := range []string{"0", "-3", "ten"} {
		resp := get(t, ts.URL+"/v1/events?limit="+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestEvents_Protobuf(t *testing.T) {
	ts := newTestServer(t, &stubDoor{events: sampleEvents()})

	resp := get(t, ts.URL+"/v1/events?limit=1", "application/json;q=0.5, application/x-protobuf")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	events := msg.GetFields()["events"].GetListValue().GetValues()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0].GetStructValue().GetFields()
	if ev["event_id"].GetStringValue() != "b" || ev["outcome"].GetStringValue() != "opened" {
		t.Errorf("unexpected event %v", ev)
	}
	if ev["bit_length"].GetNumberValue() != 26 {
		t.Errorf("bit_length = %v", ev["bit_length"].GetNumberValue())
	}
}

func TestEvents_StoreErrorIs500(t *testing.T) {
	ts := newTestServer(t, &stubDoor{err: errors.New("db gone")})

	resp := get(t, ts.URL+"/v1/events", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Errorf("error = %v", body["error"])
	}
}
