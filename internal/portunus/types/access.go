package types

// AccessEvent is the wire form of one audit-log entry.  The credential key is
// only ever exposed as its SHA-256 hex digest.
type AccessEvent struct {
	EventID     string `json:"event_id"`
	PresentedAt string `json:"presented_at"`
	BitLength   int    `json:"bit_length"`
	CardKeyHash string `json:"card_key_hash,omitempty"`
	Granted     bool   `json:"granted"`
	Reason      string `json:"reason"`
	Outcome     string `json:"outcome,omitempty"`
	DecidedAt   string `json:"decided_at"`
}

type EventsResponse struct {
	OK         bool          `json:"ok"`
	Events     []AccessEvent `json:"events"`
	ServerTime string        `json:"server_time"`
}
