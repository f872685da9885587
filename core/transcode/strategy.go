package transcode

import (
	"AriaFM/model"
)

// StrategyKind 转码策略的种类
type StrategyKind int

const (
	// StrategyCopy 不重新编码，直接把源文件喂给编码器走统一的进程管理
	StrategyCopy StrategyKind = iota
	// StrategyReencode 用指定编码器重新编码
	StrategyReencode
)

// Codec 重新编码的目标编码器
type Codec string

const (
	CodecMP3    Codec = "mp3"
	CodecVorbis Codec = "vorbis"
)

// Strategy 是 {Copy(format), Reencode(codec)} 的标签变体。
// Copy 时 Codec 为空。
type Strategy struct {
	Kind  StrategyKind
	Codec Codec
}

// Selection 是格式协商的结果：策略加输出格式
type Selection struct {
	Strategy Strategy
	Format   string // 输出格式的 MIME 串，也是 HTTP Content-Type
}

// codecSpec 每种目标编码器对应的 ffmpeg 输出参数、媒体类型和初始比特率估计
type codecSpec struct {
	outputFlags []string
	mediaType   string
	seedBitrate int // 收到第一条诊断行之前的比特率估计 (bps)
}

// 目标编码器表。MP3 按 V0 VBR（约245kbps）估计，Vorbis 按 q6（约192kbps）估计。
var codecSpecs = map[Codec]codecSpec{
	CodecMP3: {
		outputFlags: []string{"-f", "mp3", "-codec:a", "libmp3lame", "-q:a", "0"},
		mediaType:   "audio/mp3",
		seedBitrate: 245000,
	},
	CodecVorbis: {
		outputFlags: []string{"-f", "ogg", "-codec:a", "libvorbis", "-q:a", "6"},
		mediaType:   "audio/ogg",
		seedBitrate: 192000,
	},
}

// defaultSeedBitrate 源比特率未知时的保守估计
const defaultSeedBitrate = 192000

// copyMuxers 直通时按源格式选择的 ffmpeg 封装器
var copyMuxers = map[string]string{
	"audio/ogg":  "ogg",
	"audio/mp3":  "mp3",
	"audio/aac":  "adts",
	"audio/flac": "flac",
	"audio/wav":  "wav",
}

// NormalizeFormat 把常见的格式别名归一到本包使用的规范串
func NormalizeFormat(format string) string {
	switch format {
	case "audio/mpeg", "audio/mp3":
		return "audio/mp3"
	case "audio/x-flac", "audio/flac":
		return "audio/flac"
	case "application/ogg", "audio/vorbis", "audio/ogg":
		return "audio/ogg"
	case "audio/x-wav", "audio/wave", "audio/wav":
		return "audio/wav"
	default:
		return format
	}
}

// CodecForFormat 返回能产出指定格式的编码器，没有则 ok=false
func CodecForFormat(format string) (Codec, bool) {
	switch NormalizeFormat(format) {
	case "audio/mp3":
		return CodecMP3, true
	case "audio/ogg":
		return CodecVorbis, true
	default:
		return "", false
	}
}

// outputFlags 返回策略对应的 ffmpeg 输出参数
func (s Strategy) outputFlags(nativeFormat string) []string {
	if s.Kind == StrategyCopy {
		muxer, ok := copyMuxers[NormalizeFormat(nativeFormat)]
		if !ok {
			muxer = "mp3"
		}
		return []string{"-f", muxer, "-codec:a", "copy"}
	}
	return codecSpecs[s.Codec].outputFlags
}

// SeedBitrate 返回策略的初始比特率估计。直通用曲目自身的比特率，
// 未知时退回保守默认值。
func (s Strategy) SeedBitrate(track *model.Track) int {
	if s.Kind == StrategyCopy {
		if track != nil && track.Bitrate > 0 {
			return track.Bitrate
		}
		return defaultSeedBitrate
	}
	return codecSpecs[s.Codec].seedBitrate
}

// IsCopy reports whether the strategy is a passthrough copy.
func (s Strategy) IsCopy() bool {
	return s.Kind == StrategyCopy
}

// CopyStrategy 构造直通策略
func CopyStrategy() Strategy {
	return Strategy{Kind: StrategyCopy}
}

// ReencodeStrategy 构造重新编码策略
func ReencodeStrategy(codec Codec) Strategy {
	return Strategy{Kind: StrategyReencode, Codec: codec}
}
