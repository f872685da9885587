package repository

import (
	"database/sql"
	"fmt"
	"time"

	"AriaFM/db"
	"AriaFM/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetAllTracksByUserID(userID int64) ([]*model.Track, error)
	GetTrackByUserIDAndFilePath(userID int64, filePath string) (*model.Track, error)
	UpsertTrackByPath(track *model.Track) (int64, error)
	SetTrackState(trackID int64, state int8) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (user_id, title, artist, album, track_number, file_path, format, bitrate, duration, state, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.UserID, track.Title, track.Artist, track.Album, track.TrackNumber,
		track.FilePath, track.Format, track.Bitrate, track.Duration, track.State, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, track_number, file_path, format, bitrate, duration, state, created_at, updated_at
	           FROM tracks WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.TrackNumber,
		&track.FilePath, &track.Format, &track.Bitrate, &track.Duration, &track.State, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetAllTracksByUserID retrieves all active tracks for one user.
func (r *mysqlTrackRepository) GetAllTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, track_number, file_path, format, bitrate, duration, state, created_at, updated_at
	           FROM tracks WHERE user_id = ? AND state = 1 ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		err := rows.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.TrackNumber,
			&track.FilePath, &track.Format, &track.Bitrate, &track.Duration, &track.State, &track.CreatedAt, &track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// GetTrackByUserIDAndFilePath finds a track by its owner and source path.
func (r *mysqlTrackRepository) GetTrackByUserIDAndFilePath(userID int64, filePath string) (*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, track_number, file_path, format, bitrate, duration, state, created_at, updated_at
	           FROM tracks WHERE user_id = ? AND file_path = ?`
	row := r.DB.QueryRow(query, userID, filePath)

	track := &model.Track{}
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.TrackNumber,
		&track.FilePath, &track.Format, &track.Bitrate, &track.Duration, &track.State, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by path %s: %w", filePath, err)
	}
	return track, nil
}

// UpsertTrackByPath inserts the track or refreshes its metadata when the
// (user, path) pair already exists. Used by the library watcher.
func (r *mysqlTrackRepository) UpsertTrackByPath(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (user_id, title, artist, album, track_number, file_path, format, bitrate, duration, state, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	           ON DUPLICATE KEY UPDATE
	               title = VALUES(title), artist = VALUES(artist), album = VALUES(album),
	               track_number = VALUES(track_number), format = VALUES(format),
	               bitrate = VALUES(bitrate), duration = VALUES(duration),
	               state = 1, updated_at = VALUES(updated_at)`
	now := time.Now()
	res, err := r.DB.Exec(query, track.UserID, track.Title, track.Artist, track.Album, track.TrackNumber,
		track.FilePath, track.Format, track.Bitrate, track.Duration, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert track %s: %w", track.FilePath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for UpsertTrackByPath: %w", err)
	}
	return id, nil
}

// SetTrackState updates a track's state flag (1=normal, 0=soft deleted).
func (r *mysqlTrackRepository) SetTrackState(trackID int64, state int8) error {
	if _, err := r.DB.Exec(`UPDATE tracks SET state = ?, updated_at = ? WHERE id = ?`, state, time.Now(), trackID); err != nil {
		return fmt.Errorf("failed to update state for track %d: %w", trackID, err)
	}
	return nil
}
