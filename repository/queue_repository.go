package repository

import (
	"database/sql"
	"fmt"
	"time"

	"AriaFM/db"
	"AriaFM/model"
)

// QueueRepository is the queue-cursor collaborator of the streaming
// pipeline: it hands out the next entry to play for a user and records
// playback outcomes. Queue persistence is owned here, not by the pipeline.
type QueueRepository interface {
	Enqueue(userID, trackID int64) (int64, error)
	NextForUser(userID int64) (*model.QueueEntry, error)
	ListForUser(userID int64) ([]*model.QueueEntry, error)
	MarkPlayed(entryID int64) error
	RecordError(entryID int64, message string) error
	RecordPosition(entryID int64, seconds float64) error
}

// mysqlQueueRepository implements QueueRepository for MySQL.
type mysqlQueueRepository struct {
	DB *sql.DB
}

// NewMySQLQueueRepository creates a new mysqlQueueRepository.
func NewMySQLQueueRepository() QueueRepository {
	return &mysqlQueueRepository{DB: db.DB}
}

// Enqueue appends a track to the end of the user's queue.
func (r *mysqlQueueRepository) Enqueue(userID, trackID int64) (int64, error) {
	query := `INSERT INTO play_queue (user_id, track_id, position, played, created_at, updated_at)
	           VALUES (?, ?, 0, 0, ?, ?)`
	now := time.Now()
	res, err := r.DB.Exec(query, userID, trackID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue track %d for user %d: %w", trackID, userID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for Enqueue: %w", err)
	}
	return id, nil
}

// NextForUser returns the oldest unplayed queue entry for the user,
// or nil when the queue is exhausted.
func (r *mysqlQueueRepository) NextForUser(userID int64) (*model.QueueEntry, error) {
	query := `SELECT id, user_id, track_id, position, played, COALESCE(error, ''), created_at, updated_at
	           FROM play_queue WHERE user_id = ? AND played = 0 ORDER BY id ASC LIMIT 1`
	row := r.DB.QueryRow(query, userID)

	entry := &model.QueueEntry{}
	err := row.Scan(&entry.ID, &entry.UserID, &entry.TrackID, &entry.Position, &entry.Played, &entry.Error,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Queue exhausted
		}
		return nil, fmt.Errorf("failed to scan next queue entry for user %d: %w", userID, err)
	}
	return entry, nil
}

// ListForUser returns the user's pending queue in play order.
func (r *mysqlQueueRepository) ListForUser(userID int64) ([]*model.QueueEntry, error) {
	query := `SELECT id, user_id, track_id, position, played, COALESCE(error, ''), created_at, updated_at
	           FROM play_queue WHERE user_id = ? AND played = 0 ORDER BY id ASC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue for user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]*model.QueueEntry, 0)
	for rows.Next() {
		entry := &model.QueueEntry{}
		err := rows.Scan(&entry.ID, &entry.UserID, &entry.TrackID, &entry.Position, &entry.Played, &entry.Error,
			&entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPlayed flags an entry as consumed so NextForUser skips it.
func (r *mysqlQueueRepository) MarkPlayed(entryID int64) error {
	if _, err := r.DB.Exec(`UPDATE play_queue SET played = 1, updated_at = ? WHERE id = ?`, time.Now(), entryID); err != nil {
		return fmt.Errorf("failed to mark queue entry %d played: %w", entryID, err)
	}
	return nil
}

// RecordError stores a playback failure message on the entry.
func (r *mysqlQueueRepository) RecordError(entryID int64, message string) error {
	if _, err := r.DB.Exec(`UPDATE play_queue SET error = ?, updated_at = ? WHERE id = ?`, message, time.Now(), entryID); err != nil {
		return fmt.Errorf("failed to record error on queue entry %d: %w", entryID, err)
	}
	return nil
}

// RecordPosition stores the latest playback position in seconds.
func (r *mysqlQueueRepository) RecordPosition(entryID int64, seconds float64) error {
	if _, err := r.DB.Exec(`UPDATE play_queue SET position = ?, updated_at = ? WHERE id = ?`, seconds, time.Now(), entryID); err != nil {
		return fmt.Errorf("failed to record position on queue entry %d: %w", entryID, err)
	}
	return nil
}
