package model

import "time"

// QueueStatsCache is the cached result of an active/DLQ count lookup for a
// single queue. A zero FetchedAt means the stats have never been fetched.
type QueueStatsCache struct {
	QueueName   string
	QueueType   QueueKind
	ActiveCount *int64
	DLQCount    *int64
	FetchedAt   time.Time
	TTL         time.Duration
}

// Fresh reports whether the cached stats are still within TTL as of now.
func (s QueueStatsCache) Fresh(now time.Time) bool {
	if s.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(s.FetchedAt) < s.TTL
}

// Age returns how long ago the stats were fetched, as of now.
func (s QueueStatsCache) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}
