package session

import "time"

// EventKind names a session transition broadcast to other processes.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventLoggedOut EventKind = "logged_out"
	EventExpired   EventKind = "expired"
)

// Event is one session transition.
type Event struct {
	Kind   EventKind `json:"kind"`
	Source Source    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}
