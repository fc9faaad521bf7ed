package db

import "sync"

// handle is one logical endpoint. mu guards the fields below it and is never
// held across I/O.
type handle struct {
	role     Role
	dsn      string
	endpoint string

	mu      sync.Mutex
	state   State
	retries int
	conn    Conn
	closed  bool
}

func newHandle(role Role, dsn string) *handle {
	return &handle{
		role:     role,
		dsn:      dsn,
		endpoint: RedactDSN(dsn),
		state:    StateDisconnected,
	}
}

func (h *handle) snapshot() (State, Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.conn, h.closed
}

func (h *handle) status() HandleStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandleStatus{
		Role:     h.role.String(),
		State:    h.state.String(),
		Retries:  h.retries,
		Endpoint: h.endpoint,
	}
}

// begin moves the handle to Connecting. It reports false once the handle has
// been shut down.
func (h *handle) begin(resetFailed bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if resetFailed && h.state == StateFailed {
		h.retries = 0
	}
	h.state = StateConnecting
	return true
}

// failed records an unsuccessful attempt. terminal moves the handle to Failed
// instead of Disconnected.
func (h *handle) failed(terminal bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return h.retries
	}
	h.retries++
	if terminal {
		h.state = StateFailed
	} else {
		h.state = StateDisconnected
	}
	return h.retries
}

// connected installs conn. It reports false when the handle was shut down
// while the attempt was running; the caller then owns conn.
func (h *handle) connected(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conn = conn
	h.state = StateConnected
	h.retries = 0
	return true
}

// demote drops conn after a failed probe, unless it was already replaced.
func (h *handle) demote(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.conn != conn || h.state != StateConnected {
		return false
	}
	h.conn = nil
	h.state = StateDisconnected
	return true
}

// shutdown marks the handle closed for the rest of the process lifetime and
// hands back the connection to be closed, if any.
func (h *handle) shutdown() Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conn
	h.conn = nil
	h.closed = true
	h.state = StateDisconnected
	return conn
}
