package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"AriaFM/logger"
	"AriaFM/model"

	"github.com/google/uuid"
)

// Supervisor 负责编码器子进程的生命周期：构造参数、启动、终止、回收。
// 每首曲目一个 Session，单次使用。
type Supervisor struct {
	FFmpegPath string
}

// NewSupervisor 创建编码器监督者
func NewSupervisor(ffmpegPath string) *Supervisor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Supervisor{FFmpegPath: ffmpegPath}
}

// Session 一次 (曲目, 续播偏移) 的编码会话
type Session struct {
	ID            string
	Track         *model.Track
	Strategy      Strategy
	ResumeSeconds float64

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	waitOnce sync.Once
	waitErr  error
	waitDone chan struct{}

	termOnce sync.Once

	mu             sync.Mutex
	lastDiagnostic string
}

// Acquire 为曲目启动一个编码器子进程。失败返回 *SpawnError，不重试。
// 传入的 ctx 取消时子进程会被终止并回收，不会留下僵尸进程。
func (s *Supervisor) Acquire(ctx context.Context, track *model.Track, inputPath string, strategy Strategy, resumeSeconds float64) (*Session, error) {
	args := buildArgs(track, inputPath, strategy, resumeSeconds)

	cmd := exec.Command(s.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: s.FFmpegPath, Err: fmt.Errorf("failed to open stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Path: s.FFmpegPath, Err: fmt.Errorf("failed to open stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: s.FFmpegPath, Err: err}
	}

	session := &Session{
		ID:            uuid.New().String(),
		Track:         track,
		Strategy:      strategy,
		ResumeSeconds: resumeSeconds,
		cmd:           cmd,
		stdout:        stdout,
		stderr:        stderr,
		waitDone:      make(chan struct{}),
	}

	logger.Info("编码器进程已启动",
		logger.String("sessionID", session.ID),
		logger.Int64("trackID", track.ID),
		logger.Int("pid", cmd.Process.Pid),
		logger.Bool("copy", strategy.IsCopy()),
		logger.Float64("resumeSeconds", resumeSeconds))

	// 把进程挂到请求上下文：连接断开或服务停机时由这里兜底回收
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				session.Terminate()
			case <-session.waitDone:
			}
		}()
	}

	return session, nil
}

// buildArgs 构造 ffmpeg 参数向量：
// [-ss seek] [输入格式提示] -re -i <源文件> -ac 2 -vn <输出参数> -metadata... -
func buildArgs(track *model.Track, inputPath string, strategy Strategy, resumeSeconds float64) []string {
	args := make([]string, 0, 24)

	if resumeSeconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(resumeSeconds, 'f', 3, 64))
	}
	if muxer, ok := copyMuxers[NormalizeFormat(track.Format)]; ok {
		args = append(args, "-f", muxer)
	}
	args = append(args, "-re", "-i", inputPath, "-ac", "2", "-vn")
	args = append(args, strategy.outputFlags(track.Format)...)
	args = append(args,
		"-metadata", "artist="+track.Artist,
		"-metadata", "album="+track.Album,
		"-metadata", "title="+track.Title,
		"-metadata", "tracknumber="+track.TrackNumber,
		"-")

	return args
}

// Stdout 编码后的音频字节流
func (s *Session) Stdout() io.Reader {
	return s.stdout
}

// Stderr 编码器的诊断输出
func (s *Session) Stderr() io.Reader {
	return s.stderr
}

// Pid 返回子进程号
func (s *Session) Pid() int {
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// NoteDiagnostic 记录最近一条诊断行，失败时放进错误信息
func (s *Session) NoteDiagnostic(line string) {
	s.mu.Lock()
	s.lastDiagnostic = line
	s.mu.Unlock()
}

func (s *Session) recentDiagnostic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDiagnostic
}

// wait 回收子进程，只执行一次，后续调用返回同一个结果
func (s *Session) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.waitDone)
	})
	<-s.waitDone
	return s.waitErr
}

// Terminate 终止会话：发 SIGTERM、排空管道、回收进程。
// 幂等，任何时刻调用都不会留下僵尸进程。
func (s *Session) Terminate() {
	s.termOnce.Do(func() {
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				logger.Debug("发送终止信号失败（进程可能已退出）",
					logger.String("sessionID", s.ID),
					logger.ErrorField(err))
			}
		}

		// 排空管道，避免子进程卡在写满的 pipe 上退不出去
		drained := make(chan struct{})
		go func() {
			io.Copy(io.Discard, s.stdout)
			io.Copy(io.Discard, s.stderr)
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(5 * time.Second):
			// 进程不理会 SIGTERM 时强杀
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			<-drained
		}

		s.wait()
		logger.Info("编码器进程已终止",
			logger.String("sessionID", s.ID),
			logger.Int64("trackID", s.Track.ID))
	})
}

// Finalize 等待进程退出并检查退出状态。非零退出码返回 *EncodeError，
// 调用方据此把本曲目标记为播放失败，不重试。
func (s *Session) Finalize() error {
	err := s.wait()
	if err == nil {
		return nil
	}

	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	message := s.recentDiagnostic()
	if message == "" {
		message = err.Error()
	}

	logger.Error("编码器进程异常退出",
		logger.String("sessionID", s.ID),
		logger.Int64("trackID", s.Track.ID),
		logger.Int("exitCode", exitCode),
		logger.String("diagnostic", message))

	return &EncodeError{Message: message, ExitCode: exitCode}
}
