package models

import "time"

// SessionStatus is the lifecycle state of an interactive session.
type SessionStatus string

const (
	SessionStarting   SessionStatus = "starting"
	SessionActive     SessionStatus = "active"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Occupies reports whether a session in this status holds the fixed
// display/port triple. Provisioning counts: the slot is claimed before the
// display stack comes up. At most one session may be in an occupying state.
func (s SessionStatus) Occupies() bool {
	return s == SessionStarting || s == SessionActive || s == SessionProcessing
}

// InteractiveSession is a human-accessible remote browser session exposed via
// a token-gated websocket bridge. The display, VNC port and bridge port are
// statically reserved per container, so sessions are strictly single-slot.
type InteractiveSession struct {
	ID         string        `json:"id"`
	Token      string        `json:"-"` // opaque high-entropy access token, never serialized
	VendorKey  string        `json:"vendor_key"`
	RecordID   string        `json:"record_id"`
	Display    string        `json:"display"`     // e.g. ":99"
	VNCPort    int           `json:"vnc_port"`    // e.g. 5900
	BridgePort int           `json:"bridge_port"` // e.g. 6080
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}
