// Package events publishes chat activity to an external feed.
package events

import "time"

// Kind names what happened to a session.
type Kind string

const (
	// KindJoined is published after a session registers.
	KindJoined Kind = "joined"
	// KindLeft is published once per session on teardown.
	KindLeft Kind = "left"
	// KindMessage is published for every relayed chat line.
	KindMessage Kind = "message"
)

// Event is a single chat activity record.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	Text      string    `json:"text,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher ships events somewhere. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

// Publish discards ev.
func (Nop) Publish(Event) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
