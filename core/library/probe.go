package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// TrackInfo ffprobe 探测出的曲目元数据
type TrackInfo struct {
	Format      string // MIME 串，如 "audio/mp3"
	Bitrate     int    // bps，未知为 0
	Duration    float64
	Title       string
	Artist      string
	Album       string
	TrackNumber string
}

// Prober 用 ffprobe 读取音频文件的格式和标签
type Prober struct {
	FFprobePath string
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{FFprobePath: ffprobePath}
}

// probeOutput defines the structure for ffprobe JSON output.
type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string            `json:"duration"`
		BitRate  string            `json:"bit_rate"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// codecMIME 编码器名到 MIME 串的映射
var codecMIME = map[string]string{
	"mp3":    "audio/mp3",
	"vorbis": "audio/ogg",
	"opus":   "audio/ogg",
	"flac":   "audio/flac",
	"aac":    "audio/aac",
}

// extMIME 探测不到编码器时按扩展名兜底
var extMIME = map[string]string{
	".mp3":  "audio/mp3",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".m4a":  "audio/aac",
	".wav":  "audio/wav",
}

// IsAudioFile reports whether the path looks like a supported audio file.
func IsAudioFile(path string) bool {
	_, ok := extMIME[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Probe 探测一个音频文件。探测不出任何音频流时返回错误。
func (p *Prober) Probe(inputFile string) (*TrackInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-show_format",
		"-of", "json",
		inputFile,
	}

	cmd := exec.Command(p.FFprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData probeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}

	if len(probeData.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found in %s", inputFile)
	}

	info := &TrackInfo{
		Format: mimeFor(probeData.Streams[0].CodecName, inputFile),
	}

	if probeData.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	if probeData.Format.BitRate != "" {
		if b, err := strconv.Atoi(probeData.Format.BitRate); err == nil {
			info.Bitrate = b
		}
	}

	// ffprobe 的 tag 键大小写不定
	for key, value := range probeData.Format.Tags {
		switch strings.ToLower(key) {
		case "title":
			info.Title = value
		case "artist":
			info.Artist = value
		case "album":
			info.Album = value
		case "track":
			info.TrackNumber = value
		}
	}

	if info.Title == "" {
		// 没有标签就用文件名兜底
		base := filepath.Base(inputFile)
		info.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return info, nil
}

func mimeFor(codecName, path string) string {
	if mime, ok := codecMIME[codecName]; ok {
		return mime
	}
	if strings.HasPrefix(codecName, "pcm_") {
		return "audio/wav"
	}
	if mime, ok := extMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "audio/mp3"
}
