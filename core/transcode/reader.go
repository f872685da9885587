package transcode

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"AriaFM/logger"
)

// ffmpeg 的进度行形如 "size=... time=00:01:23.45 bitrate= 192.0kbits/s"
var progressPattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?).*bitrate=\s*(\d+(?:\.\d+)?)`)

// Chunk 一块编码输出，约等于一秒音频
type Chunk struct {
	Data           []byte
	Bitrate        int     // 当前比特率估计 (bps)
	ElapsedSeconds float64 // 编码器已输出的秒数，单调不减
}

// PacedReader 按当前比特率估计分块读取编码器输出，并把输出节奏
// 限制在接近实时播放的速度（允许固定的提前量）。stderr 的诊断行
// 由独立 goroutine 消费，慢的诊断流不会阻塞数据流，反之亦然。
// 单次使用，stdout 读尽后序列结束。
type PacedReader struct {
	session *Session
	lead    time.Duration

	bitrate int
	elapsed float64
	started time.Time

	mu            sync.Mutex
	parsedSeconds float64
	parsedBitrate int
	sawUpdate     bool

	stderrDone chan struct{}
}

// NewPacedReader 包装一个编码会话。lead 是允许编码器跑在实时前面的
// 固定提前量。
func NewPacedReader(session *Session, lead time.Duration) *PacedReader {
	r := &PacedReader{
		session:    session,
		lead:       lead,
		bitrate:    session.Strategy.SeedBitrate(session.Track),
		stderrDone: make(chan struct{}),
	}
	go r.consumeDiagnostics()
	return r
}

// scanProgressLines ffmpeg 的进度行用 \r 结尾覆盖刷新，普通行用 \n
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// consumeDiagnostics 持续解析 stderr，更新共享的比特率/进度估计
func (r *PacedReader) consumeDiagnostics() {
	defer close(r.stderrDone)

	scanner := bufio.NewScanner(r.session.Stderr())
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		r.session.NoteDiagnostic(line)

		m := progressPattern.FindStringSubmatch(line)
		if m == nil {
			continue // 不匹配的诊断行直接忽略
		}
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.ParseFloat(m[3], 64)
		kbps, _ := strconv.ParseFloat(m[4], 64)

		r.mu.Lock()
		r.parsedSeconds = float64(hours*3600+minutes*60) + seconds
		if kbps > 0 {
			r.parsedBitrate = int(kbps * 1000)
		}
		r.sawUpdate = true
		r.mu.Unlock()
	}
}

// Next 返回下一块数据。序列结束返回 io.EOF；ctx 取消返回其错误。
// 调用方拿到块之后才被允许继续，慢客户端自然反压到编码器读取循环。
func (r *PacedReader) Next(ctx context.Context) (*Chunk, error) {
	if r.started.IsZero() {
		r.started = time.Now()
	}

	size := r.bitrate / 8
	if size < 1024 {
		size = 1024
	}
	buf := make([]byte, size)

	n, err := io.ReadFull(r.session.Stdout(), buf)
	if n == 0 {
		<-r.stderrDone // 两条流都收尾才算序列结束
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	r.advanceEstimates()

	chunk := &Chunk{
		Data:           buf[:n],
		Bitrate:        r.bitrate,
		ElapsedSeconds: r.elapsed,
	}

	if err := r.pace(ctx); err != nil {
		return nil, err
	}
	return chunk, nil
}

// advanceEstimates 应用 stderr 解析到的最新估计。这个周期里没有新
// 诊断行时，保守地按"又读了一秒的数据"推进，保证进度不停滞。
func (r *PacedReader) advanceEstimates() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sawUpdate {
		if r.parsedSeconds > r.elapsed {
			r.elapsed = r.parsedSeconds
		}
		if r.parsedBitrate > 0 {
			r.bitrate = r.parsedBitrate
		}
		r.sawUpdate = false
		return
	}
	r.elapsed += 1
}

// pace 把输出节奏压到墙钟时间附近：编码器最多领先 lead
func (r *PacedReader) pace(ctx context.Context) error {
	target := r.started.Add(time.Duration(r.elapsed * float64(time.Second))).Add(-r.lead)
	delay := time.Until(target)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Elapsed 当前的已输出秒数估计
func (r *PacedReader) Elapsed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Started 第一次读取的墙钟时间，未开始时为零值
func (r *PacedReader) Started() time.Time {
	return r.started
}

// SecondsAhead 编码进度相对墙钟的提前量，外部用它判断缓冲健康度
// 和 scrobble 资格
func (r *PacedReader) SecondsAhead() float64 {
	if r.started.IsZero() {
		return 0
	}
	ahead := r.Elapsed() - time.Since(r.started).Seconds()
	if ahead < 0 {
		logger.Debug("编码进度落后于实时播放",
			logger.String("sessionID", r.session.ID),
			logger.Float64("behindSeconds", -ahead))
	}
	return ahead
}
