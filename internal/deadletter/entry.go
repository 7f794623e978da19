// Package deadletter stores consumer messages that exhausted their redeliveries and replays them
// to their original queue with exponential backoff, quarantining entries that keep failing.
package deadletter

import "time"

// Entry is one dead-lettered message.
type Entry struct {
	ID         int64
	Queue      string
	RoutingKey string
	Kind       string
	Key        string
	Payload    []byte
	Reason     string
	RetryCount int
	CreatedAt  time.Time
}
