package types

// DoorStatus is the controller snapshot served by GET /v1/status.
type DoorStatus struct {
	OK             bool   `json:"ok"`
	State          string `json:"state"`
	FaultAsserted  bool   `json:"fault_asserted"`
	DoorOpen       bool   `json:"door_open"`
	Cycles         uint64 `json:"cycles"`
	Faults         uint64 `json:"faults"`
	Frames         uint64 `json:"frames"`
	Anomalies      uint64 `json:"anomalies"`
	Granted        uint64 `json:"granted"`
	Denied         uint64 `json:"denied"`
	DroppedBits    uint64 `json:"dropped_bits"`
	EnabledLengths []int  `json:"enabled_lengths"`
	AllowListSize  int    `json:"allow_list_size"`
	LastTransition string `json:"last_transition,omitempty"`
	ServerTime     string `json:"server_time"`
}
