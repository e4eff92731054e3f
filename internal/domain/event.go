// Package domain holds the data types shared across the Event Stream
// Processor and the Leaderboard Engine.
package domain

// Event is one record pushed into the Event Stream Processor. It is
// immutable after construction.
type Event struct {
	// EventType is a short classifier, e.g. "message", "reaction_add".
	EventType string
	UserID    string
	ChannelID string
	// Timestamp is signed seconds since epoch. A value <= 0 means "use
	// wall clock at the moment the ESP consumer processes this event".
	Timestamp int64
}
