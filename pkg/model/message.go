// Package model holds the data types shared across the broker access layer:
// messages and their identifiers, queues, auth tokens, and the cached
// metadata the admin client and resource cache pass around. None of these
// types carry behavior that depends on a live broker connection; that lives
// in pkg/broker, pkg/bulk, pkg/pagination and pkg/mediator.
package model

import "time"

// MessageState mirrors the three states a broker message can be in.
type MessageState string

const (
	MessageStateActive    MessageState = "Active"
	MessageStateDeferred  MessageState = "Deferred"
	MessageStateScheduled MessageState = "Scheduled"
)

// Message is the immutable, user-visible view of a broker message. It is
// distinct from a receive handle: a Message can be copied and compared
// freely, while a handle (see pkg/broker) carries a broker-side lock token
// and must not outlive its lock.
type Message struct {
	Sequence      int64
	ID            string
	EnqueuedAt    time.Time
	DeliveryCount uint32
	State         MessageState
	Body          []byte
	// BodyText is the best-effort decoded text view of Body, populated when
	// the body is valid UTF-8 or a recognizable text encoding. Empty when
	// the body is opaque binary.
	BodyText string
}

// Identifier returns the MessageIdentifier primary key for m.
func (m Message) Identifier() MessageIdentifier {
	return MessageIdentifier{ID: m.ID, Sequence: m.Sequence}
}

// MessageIdentifier is the user-level primary key for a message. Sequence is
// the tiebreaker: ID alone is not guaranteed unique over the lifetime of a
// queue.
type MessageIdentifier struct {
	ID       string
	Sequence int64
}

// Less orders identifiers by Sequence ascending, matching the broker's only
// guaranteed ordering.
func (m MessageIdentifier) Less(other MessageIdentifier) bool {
	return m.Sequence < other.Sequence
}
