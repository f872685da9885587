package transcode

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"AriaFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession 不挂真实子进程，直接喂给定的两条流
func fakeSession(stdout, stderr io.Reader, strategy Strategy, track *model.Track) *Session {
	return &Session{
		ID:       "test-session",
		Track:    track,
		Strategy: strategy,
		stdout:   io.NopCloser(stdout),
		stderr:   io.NopCloser(stderr),
		waitDone: make(chan struct{}),
	}
}

// instantLead 足够大的提前量，测试里不触发真实的节奏等待
const instantLead = time.Hour

func TestReaderChunkSizeFollowsSeedBitrate(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 160000}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0xAB}, 45000))
	session := fakeSession(stdout, strings.NewReader(""), CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)

	chunk, err := r.Next(context.Background())
	require.NoError(t, err)
	// 160 kbps / 8 ≈ 一秒音频
	assert.Len(t, chunk.Data, 20000)
}

func TestReaderElapsedIsMonotonic(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 64000}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0x01}, 50000))
	session := fakeSession(stdout, strings.NewReader(""), CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)

	var last float64
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.GreaterOrEqual(t, chunk.ElapsedSeconds, last)
		last = chunk.ElapsedSeconds
	}
	assert.Greater(t, last, 0.0)
}

func TestReaderAppliesDiagnosticEstimates(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/mp3", Bitrate: 128000}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0x02}, 128000))
	stderr := strings.NewReader("size=     100kB time=00:00:05.00 bitrate= 256.0kbits/s\r")
	session := fakeSession(stdout, stderr, CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)
	<-r.stderrDone

	first, err := r.Next(context.Background())
	require.NoError(t, err)
	// 第一块还是按种子比特率分的，但估计值已经更新
	assert.Len(t, first.Data, 128000/8)
	assert.Equal(t, 256000, first.Bitrate)
	assert.Equal(t, 5.0, first.ElapsedSeconds)

	second, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, second.Data, 256000/8)
}

func TestReaderFlatFallbackWhenEncoderSilent(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 8192}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0x03}, 3*1024))
	session := fakeSession(stdout, strings.NewReader(""), CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)

	var elapsed []float64
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		elapsed = append(elapsed, chunk.ElapsedSeconds)
	}
	// 没有诊断行时每个周期固定推进一秒
	assert.Equal(t, []float64{1, 2, 3}, elapsed)
}

func TestReaderIgnoresUnmatchedDiagnosticLines(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 8192}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0x04}, 1024))
	stderr := strings.NewReader("Input #0, ogg, from 'a.ogg':\nStream mapping:\n")
	session := fakeSession(stdout, stderr, CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)
	<-r.stderrDone

	chunk, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, chunk.ElapsedSeconds)
	assert.Equal(t, 8192, chunk.Bitrate)
}

func TestReaderEndsWithEOF(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 8192}
	session := fakeSession(strings.NewReader(""), strings.NewReader(""), CopyStrategy(), track)

	r := NewPacedReader(session, instantLead)

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderPacingHonorsCancellation(t *testing.T) {
	track := &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 8192}
	stdout := bytes.NewReader(bytes.Repeat([]byte{0x05}, 10*1024))
	stderr := strings.NewReader("time=00:00:30.00 bitrate= 64.0kbits/s\r")
	session := fakeSession(stdout, stderr, CopyStrategy(), track)

	// 零提前量：进度估计 30s 会让 pace 想睡很久
	r := NewPacedReader(session, 0)
	<-r.stderrDone

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScanProgressLinesSplitsOnCRAndLF(t *testing.T) {
	input := "Stream mapping:\ntime=00:00:01.00 bitrate= 128.0kbits/s\rtime=00:00:02.00 bitrate= 128.0kbits/s\r"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanProgressLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "time=00:00:01.00")
	assert.Contains(t, lines[2], "time=00:00:02.00")
}

func TestProgressPatternParsing(t *testing.T) {
	m := progressPattern.FindStringSubmatch("frame=0 size= 2048kB time=01:02:03.45 bitrate= 192.3kbits/s speed=1x")
	require.NotNil(t, m)
	assert.Equal(t, "01", m[1])
	assert.Equal(t, "02", m[2])
	assert.Equal(t, "03.45", m[3])
	assert.Equal(t, "192.3", m[4])
}
