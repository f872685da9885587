package library

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"AriaFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrackRepo struct {
	mu       sync.Mutex
	upserts  []*model.Track
	byPath   map[string]*model.Track
	disabled []int64
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{byPath: make(map[string]*model.Track)}
}

func (r *fakeTrackRepo) CreateTrack(track *model.Track) (int64, error) {
	return r.UpsertTrackByPath(track)
}

func (r *fakeTrackRepo) GetTrackByID(_ int64) (*model.Track, error) { return nil, nil }

func (r *fakeTrackRepo) GetAllTracksByUserID(_ int64) ([]*model.Track, error) { return nil, nil }

func (r *fakeTrackRepo) GetTrackByUserIDAndFilePath(_ int64, filePath string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPath[filePath], nil
}

func (r *fakeTrackRepo) UpsertTrackByPath(track *model.Track) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	track.ID = int64(len(r.upserts) + 1)
	r.upserts = append(r.upserts, track)
	r.byPath[track.FilePath] = track
	return track.ID, nil
}

func (r *fakeTrackRepo) SetTrackState(trackID int64, state int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state == 0 {
		r.disabled = append(r.disabled, trackID)
	}
	return nil
}

func TestScanAllIndexesAudioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "album"), 0o755))
	for _, name := range []string{"a.mp3", "album/b.ogg", "cover.jpg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	repo := newFakeTrackRepo()
	prober := NewProber(fakeFFprobe(t, probeJSON, 0))
	w := NewWatcher(dir, 1, prober, repo)

	require.NoError(t, w.ScanAll())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	// 只有音频文件入库
	require.Len(t, repo.upserts, 2)
	for _, track := range repo.upserts {
		assert.Equal(t, int64(1), track.UserID)
		assert.Equal(t, int8(1), track.State)
	}
}

func TestScanAllSkipsUnprobeableFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mp3"), []byte("x"), 0o644))

	repo := newFakeTrackRepo()
	prober := NewProber(fakeFFprobe(t, "", 1))
	w := NewWatcher(dir, 1, prober, repo)

	// 坏文件只跳过，不让整个扫描失败
	require.NoError(t, w.ScanAll())
	assert.Empty(t, repo.upserts)
}

func TestDeactivateSoftDeletesKnownTrack(t *testing.T) {
	repo := newFakeTrackRepo()
	repo.byPath["/music/gone.mp3"] = &model.Track{ID: 9, UserID: 1, FilePath: "/music/gone.mp3"}

	w := NewWatcher("/music", 1, NewProber(""), repo)
	w.deactivate("/music/gone.mp3")

	assert.Equal(t, []int64{9}, repo.disabled)
}

func TestDeactivateIgnoresUnknownPath(t *testing.T) {
	repo := newFakeTrackRepo()
	w := NewWatcher("/music", 1, NewProber(""), repo)

	w.deactivate("/music/never-seen.mp3")
	w.deactivate("/music/cover.jpg")

	assert.Empty(t, repo.disabled)
}
