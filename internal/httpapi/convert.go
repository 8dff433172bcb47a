package httpapi

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/types"
)

// The protobuf forms mirror the JSON field names so clients can switch
// encodings without remapping.

// ── Status ───────────────────────────────────────────────────────────────────

func statusToProto(st types.DoorStatus) (*structpb.Struct, error) {
	lengths := make([]any, len(st.EnabledLengths))
	for i, n := range st.EnabledLengths {
		lengths[i] = n
	}

	return structpb.NewStruct(map[string]any{
		"ok":              st.OK,
		"state":           st.State,
		"fault_asserted":  st.FaultAsserted,
		"door_open":       st.DoorOpen,
		"cycles":          st.Cycles,
		"faults":          st.Faults,
		"frames":          st.Frames,
		"anomalies":       st.Anomalies,
		"granted":         st.Granted,
		"denied":          st.Denied,
		"dropped_bits":    st.DroppedBits,
		"enabled_lengths": lengths,
		"allow_list_size": st.AllowListSize,
		"last_transition": st.LastTransition,
		"server_time":     st.ServerTime,
	})
}

// ── Events ───────────────────────────────────────────────────────────────────

func eventToMap(ev types.AccessEvent) map[string]any {
	m := map[string]any{
		"event_id":     ev.EventID,
		"presented_at": ev.PresentedAt,
		"bit_length":   ev.BitLength,
		"granted":      ev.Granted,
		"reason":       ev.Reason,
		"decided_at":   ev.DecidedAt,
	}
	if ev.CardKeyHash != "" {
		m["card_key_hash"] = ev.CardKeyHash
	}
	if ev.Outcome != "" {
		m["outcome"] = ev.Outcome
	}
	return m
}

func eventsToProto(resp types.EventsResponse) (*structpb.Struct, error) {
	events := make([]any, len(resp.Events))
	for i, ev := range resp.Events {
		events[i] = eventToMap(ev)
	}
	return structpb.NewStruct(map[string]any{
		"ok":          resp.OK,
		"events":      events,
		"server_time": resp.ServerTime,
	})
}
