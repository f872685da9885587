package transcode

import (
	"testing"

	"AriaFM/model"

	"github.com/stretchr/testify/assert"
)

func oggTrack() *model.Track {
	return &model.Track{ID: 1, Format: "audio/ogg", Bitrate: 160000}
}

func mp3Track() *model.Track {
	return &model.Track{ID: 2, Format: "audio/mp3", Bitrate: 320000}
}

func flacTrack() *model.Track {
	return &model.Track{ID: 3, Format: "audio/flac", Bitrate: 900000}
}

func TestSelectMPDNativeOggIsCopied(t *testing.T) {
	sel := Select(oggTrack(), "Music Player Daemon 0.18.8", []string{"*/*"})

	assert.True(t, sel.Strategy.IsCopy())
	assert.Equal(t, "audio/ogg", sel.Format)
}

func TestSelectChromeLinuxForcesOggReencode(t *testing.T) {
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	sel := Select(mp3Track(), ua, []string{"*/*"})

	assert.False(t, sel.Strategy.IsCopy())
	assert.Equal(t, CodecVorbis, sel.Strategy.Codec)
	assert.Equal(t, "audio/ogg", sel.Format)
}

func TestSelectExplicitAcceptWinsOverUserAgent(t *testing.T) {
	// Accept 头明确列出了原生格式时 UA 不再参与决策
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	sel := Select(mp3Track(), ua, []string{"audio/mp3", "*/*"})

	assert.True(t, sel.Strategy.IsCopy())
	assert.Equal(t, "audio/mp3", sel.Format)
}

func TestSelectUnknownClientFlacFallsBackToVorbis(t *testing.T) {
	sel := Select(flacTrack(), "SomeObscurePlayer/1.0", nil)

	assert.False(t, sel.Strategy.IsCopy())
	assert.Equal(t, CodecVorbis, sel.Strategy.Codec)
	assert.Equal(t, "audio/ogg", sel.Format)
}

func TestSelectEmptyAcceptEqualsWildcard(t *testing.T) {
	withEmpty := Select(oggTrack(), "Music Player Daemon 0.18.8", nil)
	withWildcard := Select(oggTrack(), "Music Player Daemon 0.18.8", []string{"*/*"})

	assert.Equal(t, withWildcard, withEmpty)
}

func TestSelectPlayerTableNeverCopiesFlac(t *testing.T) {
	// 播放器表的条目不含 flac，无损源只在客户端明确要求时才直通
	for _, ua := range []string{
		"Music Player Daemon 0.18.8",
		"VLC/3.0.18 LibVLC/3.0.18",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	} {
		sel := Select(flacTrack(), ua, []string{"*/*"})
		assert.False(t, sel.Strategy.IsCopy(), "ua=%s", ua)
	}
}

func TestSelectExplicitFlacAcceptIsHonored(t *testing.T) {
	sel := Select(flacTrack(), "SomeObscurePlayer/1.0", []string{"audio/flac"})

	assert.True(t, sel.Strategy.IsCopy())
	assert.Equal(t, "audio/flac", sel.Format)
}

func TestSelectExplicitListOrderPicksFirstEncodable(t *testing.T) {
	sel := Select(flacTrack(), "", []string{"audio/mp3", "audio/ogg"})

	assert.False(t, sel.Strategy.IsCopy())
	assert.Equal(t, CodecMP3, sel.Strategy.Codec)
	assert.Equal(t, "audio/mp3", sel.Format)
}

func TestSelectFirstPlayerMatchShortCircuits(t *testing.T) {
	// Chrome/Linux 条目只列 ogg，后面的通用 Chrome 条目不再参与
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	sel := Select(mp3Track(), ua, []string{"*/*"})

	assert.Equal(t, "audio/ogg", sel.Format)
}

func TestSelectIsDeterministic(t *testing.T) {
	track := mp3Track()
	first := Select(track, "VLC/3.0.18 LibVLC/3.0.18", []string{"*/*"})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Select(track, "VLC/3.0.18 LibVLC/3.0.18", []string{"*/*"}))
	}
}

func TestSelectNeverFails(t *testing.T) {
	tracks := []*model.Track{oggTrack(), mp3Track(), flacTrack(), {ID: 9, Format: "audio/unknown"}}
	agents := []string{"", "Music Player Daemon 0.18.8", "curl/8.0", "iTunes/12.9"}
	accepts := [][]string{nil, {"*/*"}, {"audio/ogg"}, {"video/mp4"}, {"application/json", "*/*"}}

	for _, track := range tracks {
		for _, ua := range agents {
			for _, acc := range accepts {
				sel := Select(track, ua, acc)
				assert.NotEmpty(t, sel.Format)
			}
		}
	}
}

func TestSeedBitrateByStrategy(t *testing.T) {
	assert.Equal(t, 320000, CopyStrategy().SeedBitrate(mp3Track()))
	assert.Equal(t, defaultSeedBitrate, CopyStrategy().SeedBitrate(&model.Track{Format: "audio/ogg"}))
	assert.Equal(t, 245000, ReencodeStrategy(CodecMP3).SeedBitrate(mp3Track()))
	assert.Equal(t, 192000, ReencodeStrategy(CodecVorbis).SeedBitrate(mp3Track()))
}
