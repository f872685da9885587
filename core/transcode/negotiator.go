package transcode

import (
	"regexp"

	"AriaFM/logger"
	"AriaFM/model"
)

// playerProfile 已知播放器的 UA 特征和它实际支持的格式列表。
// 很多播放器只发 */* 或干脆不带 Accept 头，所以靠 UA 识别。
type playerProfile struct {
	pattern *regexp.Regexp
	formats []string
}

// 播放器表是有序的：第一个匹配的条目生效，后面的不再尝试。
// Chrome/Linux 必须排在通用 Chrome 之前。表里刻意不含 audio/flac ——
// 无损源对没有明确要求它的播放器一律重新编码。
var playerProfiles = []playerProfile{
	{regexp.MustCompile(`Music Player Daemon`), []string{"audio/ogg", "audio/mp3"}},
	{regexp.MustCompile(`VLC/`), []string{"audio/ogg", "audio/mp3"}},
	{regexp.MustCompile(`\(X11;.*Linux.*\).*Chrome/`), []string{"audio/ogg"}},
	{regexp.MustCompile(`Chrome/|CriOS/`), []string{"audio/mp3", "audio/ogg"}},
	{regexp.MustCompile(`Firefox/`), []string{"audio/ogg", "audio/mp3"}},
	{regexp.MustCompile(`iTunes/|Safari/`), []string{"audio/mp3"}},
	{regexp.MustCompile(`foobar2000/|Winamp/`), []string{"audio/mp3", "audio/ogg"}},
}

// Select 为一次流请求选择转码策略和输出格式。纯函数，永远有结果：
//  1. 客户端给了明确的 Accept 列表（非空且不只是 */*）时优先按它解析
//  2. 否则按 UA 匹配播放器表，第一个命中的条目生效
//  3. 候选列表里有原生格式就直通，否则按顺序找第一个能编出来的格式
//  4. 都不行就兜底：原生是 ogg 直通，否则强制转 Ogg/Vorbis
func Select(track *model.Track, userAgent string, accepts []string) Selection {
	if isExplicitAcceptList(accepts) {
		if sel, ok := resolve(track, accepts); ok {
			logger.Debug("按 Accept 头解析出转码策略",
				logger.Int64("trackID", track.ID),
				logger.String("format", sel.Format),
				logger.Bool("copy", sel.Strategy.IsCopy()))
			return sel
		}
	} else {
		for _, profile := range playerProfiles {
			if !profile.pattern.MatchString(userAgent) {
				continue
			}
			// 命中即短路：就算这个条目里解析不出结果也不再试下一条
			if sel, ok := resolve(track, profile.formats); ok {
				logger.Debug("按播放器特征解析出转码策略",
					logger.Int64("trackID", track.ID),
					logger.String("userAgent", userAgent),
					logger.String("format", sel.Format))
				return sel
			}
			break
		}
	}

	// 兜底保证协商永远不会失败
	if NormalizeFormat(track.Format) == "audio/ogg" {
		return Selection{Strategy: CopyStrategy(), Format: "audio/ogg"}
	}
	return Selection{Strategy: ReencodeStrategy(CodecVorbis), Format: "audio/ogg"}
}

// isExplicitAcceptList 空列表等同于 ["*/*"]，都不算明确偏好
func isExplicitAcceptList(accepts []string) bool {
	if len(accepts) == 0 {
		return false
	}
	if len(accepts) == 1 && accepts[0] == "*/*" {
		return false
	}
	return true
}

// resolve 在有序候选列表里解析策略。原生格式在列表里就直通，
// 否则按顺序取第一个有编码器能产出的格式。
func resolve(track *model.Track, candidates []string) (Selection, bool) {
	native := NormalizeFormat(track.Format)

	for _, candidate := range candidates {
		if NormalizeFormat(candidate) != native {
			continue
		}
		if _, ok := copyMuxers[native]; ok {
			return Selection{Strategy: CopyStrategy(), Format: native}, true
		}
	}

	for _, candidate := range candidates {
		if codec, ok := CodecForFormat(candidate); ok {
			return Selection{
				Strategy: ReencodeStrategy(codec),
				Format:   codecSpecs[codec].mediaType,
			}, true
		}
	}

	return Selection{}, false
}
