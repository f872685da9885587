package server

import (
	"testing"

	"AriaFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueueRepo struct {
	entries []*model.QueueEntry
	played  []int64
	errors  map[int64]string
}

func newFakeQueueRepo(entries ...*model.QueueEntry) *fakeQueueRepo {
	return &fakeQueueRepo{entries: entries, errors: make(map[int64]string)}
}

func (q *fakeQueueRepo) Enqueue(userID, trackID int64) (int64, error) { return 0, nil }

func (q *fakeQueueRepo) NextForUser(userID int64) (*model.QueueEntry, error) {
	for _, e := range q.entries {
		if e.UserID == userID && !e.Played {
			return e, nil
		}
	}
	return nil, nil
}

func (q *fakeQueueRepo) ListForUser(userID int64) ([]*model.QueueEntry, error) { return nil, nil }

func (q *fakeQueueRepo) MarkPlayed(entryID int64) error {
	q.played = append(q.played, entryID)
	for _, e := range q.entries {
		if e.ID == entryID {
			e.Played = true
		}
	}
	return nil
}

func (q *fakeQueueRepo) RecordError(entryID int64, message string) error {
	q.errors[entryID] = message
	return nil
}

func (q *fakeQueueRepo) RecordPosition(entryID int64, seconds float64) error { return nil }

type fakeTrackLookup struct {
	tracks map[int64]*model.Track
}

func (r *fakeTrackLookup) CreateTrack(*model.Track) (int64, error)         { return 0, nil }
func (r *fakeTrackLookup) GetAllTracksByUserID(int64) ([]*model.Track, error) { return nil, nil }
func (r *fakeTrackLookup) GetTrackByUserIDAndFilePath(int64, string) (*model.Track, error) {
	return nil, nil
}
func (r *fakeTrackLookup) UpsertTrackByPath(*model.Track) (int64, error) { return 0, nil }
func (r *fakeTrackLookup) SetTrackState(int64, int8) error               { return nil }

func (r *fakeTrackLookup) GetTrackByID(id int64) (*model.Track, error) {
	return r.tracks[id], nil
}

func TestQueueCursorReturnsPlayableTrack(t *testing.T) {
	queue := newFakeQueueRepo(&model.QueueEntry{ID: 10, UserID: 1, TrackID: 5, Position: 12.5})
	tracks := &fakeTrackLookup{tracks: map[int64]*model.Track{
		5: {ID: 5, UserID: 1, State: 1, Format: "audio/mp3"},
	}}
	cursor := newQueueCursor(queue, tracks)

	item, err := cursor.Next(1)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(10), item.EntryID)
	assert.Equal(t, int64(5), item.Track.ID)
	assert.Equal(t, 12.5, item.ResumeSeconds)
}

func TestQueueCursorSkipsUnavailableTracks(t *testing.T) {
	queue := newFakeQueueRepo(
		&model.QueueEntry{ID: 10, UserID: 1, TrackID: 5}, // 曲目已软删除
		&model.QueueEntry{ID: 11, UserID: 1, TrackID: 6}, // 曲目不存在
		&model.QueueEntry{ID: 12, UserID: 1, TrackID: 7}, // 正常
	)
	tracks := &fakeTrackLookup{tracks: map[int64]*model.Track{
		5: {ID: 5, UserID: 1, State: 0},
		7: {ID: 7, UserID: 1, State: 1},
	}}
	cursor := newQueueCursor(queue, tracks)

	item, err := cursor.Next(1)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(12), item.EntryID)

	// 坏的两项被标记为已播并记了错误
	assert.Equal(t, []int64{10, 11}, queue.played)
	assert.Contains(t, queue.errors[10], "no longer available")
	assert.Contains(t, queue.errors[11], "no longer available")
}

func TestQueueCursorEmptyQueue(t *testing.T) {
	cursor := newQueueCursor(newFakeQueueRepo(), &fakeTrackLookup{})

	item, err := cursor.Next(1)
	require.NoError(t, err)
	assert.Nil(t, item)
}
