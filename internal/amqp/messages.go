package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"presupuesto/internal/session"
)

// SessionEventMessage is a session transition broadcast to every process
// sharing the session store. Origin identifies the publishing process so it
// can ignore its own events.
type SessionEventMessage struct {
	Kind      session.EventKind `json:"kind"`
	Source    session.Source    `json:"source,omitempty"`
	Origin    string            `json:"origin"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewSessionEventMessage wraps ev for publishing
func NewSessionEventMessage(ev session.Event, origin string) *SessionEventMessage {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &SessionEventMessage{
		Kind:      ev.Kind,
		Source:    ev.Source,
		Origin:    origin,
		Timestamp: at,
	}
}

// Event returns the session event carried by the message
func (m *SessionEventMessage) Event() session.Event {
	return session.Event{Kind: m.Kind, Source: m.Source, At: m.Timestamp}
}

// ToJSON converts the message to JSON bytes
func (m *SessionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SessionEventMessageFromJSON decodes a message and rejects unknown kinds
func SessionEventMessageFromJSON(data []byte) (*SessionEventMessage, error) {
	var msg SessionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case session.EventSignedIn, session.EventLoggedOut, session.EventExpired:
	default:
		return nil, fmt.Errorf("unknown session event kind %q", msg.Kind)
	}
	return &msg, nil
}
