package model

import "time"

// PlayHistory records a finished (or sufficiently played) track for
// scrobbling and statistics. Stored via GORM.
type PlayHistory struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"index" json:"userId"`
	TrackID       int64     `gorm:"index" json:"trackId"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	Album         string    `json:"album"`
	PlayedSeconds float64   `json:"playedSeconds"` // Encoder-reported seconds actually delivered
	Completed     bool      `json:"completed"`     // True when the track played to the end without error
	PlayedAt      time.Time `json:"playedAt"`
}

// TableName maps PlayHistory onto the play_history table.
func (PlayHistory) TableName() string {
	return "play_history"
}
