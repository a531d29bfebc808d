// Package network tracks whether remote resources are reachable at all, and how well.
package network

import (
	"time"
)

// State is the connectivity level observed by the monitor
type State int32

const (
	// Online means the link is up and the liveness probe answers quickly
	Online State = iota
	// Offline means the link is down; no probing is needed to know that
	Offline
	// Limited means the link is up but the probe is slow or failing
	Limited
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	case Limited:
		return "limited"
	default:
		return "unknown"
	}
}

// Transition describes a state change delivered to subscribers
type Transition struct {
	From State
	To   State
	At   time.Time
	// Restored is set when leaving Offline, which is when callers resume loading
	Restored bool
}

// Snapshot is a read-only view of the monitor
type Snapshot struct {
	State     State
	Running   bool
	LastRTT   time.Duration // round trip of the last successful probe
	LastProbe time.Time     // zero until the first probe
	LastError string        // message of the last failed probe
}
