package core

import "fmt"

// Status is the connection status between the user and a peer.
type Status string

const (
	StatusUnknown   Status = ""
	StatusNone      Status = "none"
	StatusConnected Status = "connected"
	StatusPending   Status = "pending"
	// StatusIncoming means the peer has requested a connection with the user.
	StatusIncoming Status = "incoming"
	StatusSelf     Status = "self"
)

// ParseStatus validates a status string reported by the authority.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNone, StatusConnected, StatusPending, StatusIncoming, StatusSelf:
		return st, nil
	case StatusUnknown:
		return StatusNone, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown relation status %q", s)
	}
}

// On reports whether the status counts as the "connected" relation being on.
// A sent request is on: it is what the connect action produces.
func (s Status) On() bool {
	return s == StatusConnected || s == StatusPending
}

// Terminal reports whether no toggle can change the status.
func (s Status) Terminal() bool {
	return s == StatusSelf
}

// Label is the short text rendered next to a peer.
func (s Status) Label() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusPending:
		return "requested"
	case StatusIncoming:
		return "wants to connect"
	case StatusSelf:
		return "you"
	default:
		return "not connected"
	}
}

// Project derives the status to render from the server-reported status and
// a local override. The override wins whenever it is present.
func Project(server Status, override *Status) Status {
	if override != nil {
		return *override
	}
	if server == StatusUnknown {
		return StatusNone
	}
	return server
}

// StatusFor maps a boolean relation value onto a peer status.
func StatusFor(on bool) Status {
	if on {
		return StatusPending
	}
	return StatusNone
}
