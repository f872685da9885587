package model

import "time"

// QueueEntry is one position in a user's play queue. The streaming
// orchestrator consumes entries in order; the queue itself is owned by the
// repository layer.
type QueueEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	TrackID   int64     `json:"trackId"`
	Position  float64   `json:"position"` // Last recorded playback position in seconds
	Played    bool      `json:"played"`
	Error     string    `json:"error,omitempty"` // Playback failure message, if any
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
