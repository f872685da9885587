package storage

import (
	"context"
	"testing"

	"AriaFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsObjectPath(t *testing.T) {
	assert.True(t, IsObjectPath("minio://library/a.mp3"))
	assert.False(t, IsObjectPath("/music/a.mp3"))
	assert.False(t, IsObjectPath("library/a.mp3"))
}

func TestResolveLocalPathPassesThrough(t *testing.T) {
	r := NewObjectSourceResolver(nil, "ariafm")
	track := &model.Track{FilePath: "/music/a.mp3"}

	path, cleanup, err := r.Resolve(context.Background(), track)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "/music/a.mp3", path)
}
