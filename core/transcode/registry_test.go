package transcode

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDifferentAgent(t *testing.T) {
	reg := NewRegistry()

	lease, err := reg.Begin(1, "mpd/0.18", nil)
	require.NoError(t, err)
	defer lease.Release()

	_, err = reg.Begin(1, "vlc/3.0", nil)
	assert.ErrorIs(t, err, ErrConcurrentStream)

	agent, ok := reg.ActiveAgent(1)
	require.True(t, ok)
	assert.Equal(t, "mpd/0.18", agent)
}

func TestRegistrySameAgentSupersedes(t *testing.T) {
	reg := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	old, err := reg.Begin(1, "mpd/0.18", cancel)
	require.NoError(t, err)

	replacement, err := reg.Begin(1, "mpd/0.18", nil)
	require.NoError(t, err)

	// 旧会话被取消
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// 被顶掉的旧 Lease 释放不影响新注册
	old.Release()
	agent, ok := reg.ActiveAgent(1)
	require.True(t, ok)
	assert.Equal(t, "mpd/0.18", agent)

	replacement.Release()
	_, ok = reg.ActiveAgent(1)
	assert.False(t, ok)
}

func TestRegistryIndependentUsers(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.Begin(1, "mpd/0.18", nil)
	require.NoError(t, err)
	b, err := reg.Begin(2, "vlc/3.0", nil)
	require.NoError(t, err)

	a.Release()
	b.Release()
}

func TestRegistryReleaseThenBeginWithNewAgent(t *testing.T) {
	reg := NewRegistry()

	lease, err := reg.Begin(1, "mpd/0.18", nil)
	require.NoError(t, err)
	lease.Release()

	next, err := reg.Begin(1, "vlc/3.0", nil)
	require.NoError(t, err)
	next.Release()
}

func TestRegistryConcurrentBeginSingleWinner(t *testing.T) {
	reg := NewRegistry()

	const n = 32
	var wg sync.WaitGroup
	successes := make(chan *Lease, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agent := "player-" + string(rune('a'+i%26))
			if lease, err := reg.Begin(1, agent, nil); err == nil {
				successes <- lease
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	// 不同播放器并发抢同一用户：最多一个赢家占位，其余都被拒
	// （同名 agent 允许顶替，所以赢家数按占位者算）
	_, active := reg.ActiveAgent(1)
	assert.True(t, active)

	count := 0
	for range successes {
		count++
	}
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 26)
}

func TestRegistryCancelAll(t *testing.T) {
	reg := NewRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	_, err := reg.Begin(1, "mpd/0.18", cancel1)
	require.NoError(t, err)
	_, err = reg.Begin(2, "vlc/3.0", cancel2)
	require.NoError(t, err)

	reg.CancelAll()

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
	_, ok := reg.ActiveAgent(1)
	assert.False(t, ok)
}
