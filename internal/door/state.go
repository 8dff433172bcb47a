package door

import "fmt"

// State is the lock actuator's position in its unlock cycle.
type State int

const (
	Locked State = iota
	Unlocking
	Open
	Relocking
	Fault
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Open:
		return "open"
	case Relocking:
		return "relocking"
	case Fault:
		return "fault"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition is one state change, as delivered to observers.
type Transition struct {
	From State
	To   State
}
