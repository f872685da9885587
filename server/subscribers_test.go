package server

import (
	"errors"
	"sync"
	"testing"

	"AriaFM/core/events"
	"AriaFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*model.PlayHistory
}

func (r *fakeHistoryRepo) Record(entry *model.PlayHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeHistoryRepo) RecentForUser(int64, int) ([]*model.PlayHistory, error) {
	return nil, nil
}

func scrobbleTrack() *model.Track {
	return &model.Track{ID: 5, Title: "Aria", Artist: "Someone", Duration: 200}
}

func TestScrobblerRecordsHalfPlayedTrack(t *testing.T) {
	history := &fakeHistoryRepo{}
	bus := events.NewBus()
	NewScrobbler(history).Register(bus)

	track := scrobbleTrack()
	bus.Emit(events.Event{Name: events.TranscodingProgress, UserID: 1, Track: track, QueueEntryID: 10, Seconds: 120})
	bus.Emit(events.Event{Name: events.TranscodingEnd, UserID: 1, Track: track, QueueEntryID: 10})

	require.Len(t, history.entries, 1)
	entry := history.entries[0]
	assert.Equal(t, int64(5), entry.TrackID)
	assert.Equal(t, 120.0, entry.PlayedSeconds)
	assert.True(t, entry.Completed)
}

func TestScrobblerSkipsBarelyPlayedTrack(t *testing.T) {
	history := &fakeHistoryRepo{}
	bus := events.NewBus()
	NewScrobbler(history).Register(bus)

	track := scrobbleTrack()
	bus.Emit(events.Event{Name: events.TranscodingProgress, UserID: 1, Track: track, QueueEntryID: 10, Seconds: 30})
	bus.Emit(events.Event{Name: events.TranscodingEnd, UserID: 1, Track: track, QueueEntryID: 10})

	assert.Empty(t, history.entries)
}

func TestScrobblerFailedTrackIsNotCompleted(t *testing.T) {
	history := &fakeHistoryRepo{}
	bus := events.NewBus()
	NewScrobbler(history).Register(bus)

	track := scrobbleTrack()
	bus.Emit(events.Event{Name: events.TranscodingProgress, UserID: 1, Track: track, QueueEntryID: 10, Seconds: 150})
	bus.Emit(events.Event{
		Name: events.TranscodingEnd, UserID: 1, Track: track, QueueEntryID: 10,
		Err: errors.New("encoder failed"),
	})

	require.Len(t, history.entries, 1)
	assert.False(t, history.entries[0].Completed)
}

func TestScrobblerUnknownDurationUsesFallback(t *testing.T) {
	history := &fakeHistoryRepo{}
	bus := events.NewBus()
	NewScrobbler(history).Register(bus)

	track := &model.Track{ID: 6, Duration: 0}
	bus.Emit(events.Event{Name: events.TranscodingProgress, UserID: 1, Track: track, QueueEntryID: 11, Seconds: 250})
	bus.Emit(events.Event{Name: events.TranscodingEnd, UserID: 1, Track: track, QueueEntryID: 11})

	require.Len(t, history.entries, 1)

	bus.Emit(events.Event{Name: events.TranscodingProgress, UserID: 1, Track: track, QueueEntryID: 12, Seconds: 100})
	bus.Emit(events.Event{Name: events.TranscodingEnd, UserID: 1, Track: track, QueueEntryID: 12})

	assert.Len(t, history.entries, 1)
}
