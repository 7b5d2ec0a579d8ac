package model

import "strings"

// DeadLetterSuffix addresses a queue's dead-letter sibling. The broker
// exposes it as a distinct sub-entity reachable by appending this suffix to
// the main queue's name, never as a separately provisioned resource.
const DeadLetterSuffix = "/$deadletterqueue"

// QueueKind distinguishes a main queue from its dead-letter sibling.
type QueueKind string

const (
	QueueKindMain       QueueKind = "Main"
	QueueKindDeadLetter QueueKind = "DeadLetter"
)

// Queue identifies a queue or its DLQ sibling by name and kind.
type Queue struct {
	Name string
	Kind QueueKind
}

// MainQueue builds a Queue referring to the main (non-DLQ) entity.
func MainQueue(name string) Queue {
	return Queue{Name: name, Kind: QueueKindMain}
}

// DeadLetterQueue builds a Queue referring to the DLQ sibling of name.
// name must already be the bare main-queue name (no suffix).
func DeadLetterQueue(name string) Queue {
	return Queue{Name: name, Kind: QueueKindDeadLetter}
}

// EntityPath returns the name the broker SDK should address: the bare name
// for a Main queue, or name+DeadLetterSuffix for a DeadLetter queue.
func (q Queue) EntityPath() string {
	if q.Kind == QueueKindDeadLetter {
		return q.Name + DeadLetterSuffix
	}
	return q.Name
}

// MainName strips a trailing DeadLetterSuffix, returning the owning main
// queue's bare name regardless of q.Kind. Used to resolve the destination of
// a DLQ resend.
func (q Queue) MainName() string {
	return strings.TrimSuffix(q.Name, DeadLetterSuffix)
}

// IsDeadLetterEntityPath reports whether path ends with DeadLetterSuffix,
// used by the producer manager to refuse direct DLQ ingress.
func IsDeadLetterEntityPath(path string) bool {
	return strings.HasSuffix(path, DeadLetterSuffix)
}
