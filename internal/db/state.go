package db

// Role names one of the two endpoints owned by a Manager.
type Role int

const (
	RoleWriter Role = iota
	RoleReader
)

func (r Role) String() string {
	switch r {
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return "unknown"
	}
}

// State is the connection state of a single handle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandleStatus is a point-in-time view of one handle.
type HandleStatus struct {
	Role     string `json:"role"`
	State    string `json:"state"`
	Retries  int    `json:"retries"`
	Endpoint string `json:"endpoint"`
}

// Health holds the independent probe results of both handles.
type Health struct {
	Writer bool `json:"writer"`
	Reader bool `json:"reader"`
}
