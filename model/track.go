package model

import "time"

// Track represents an audio track in the music library.
// The transcoding pipeline treats it as immutable: it reads the file path,
// the native format and the display metadata, and never writes back.
type Track struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	TrackNumber string    `json:"trackNumber"`
	FilePath    string    `json:"-"`        // Path to the source audio file, not exposed in API directly
	Format      string    `json:"format"`   // Native format as a MIME-like string, e.g. "audio/mp3"
	Bitrate     int       `json:"bitrate"`  // Native bitrate in bits/sec, 0 when unknown
	Duration    float64   `json:"duration"` // Duration in seconds, 0 when unknown
	State       int8      `json:"state"`    // 0=soft deleted, 1=normal
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
