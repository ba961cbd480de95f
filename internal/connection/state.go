package connection

// State is the position of an open request in the connection state machine.
type State int

const (
	Idle State = iota
	Opening
	Upgrading
	Open
	Failed
	Blocked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Upgrading:
		return "upgrading"
	case Open:
		return "open"
	case Failed:
		return "failed"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}
