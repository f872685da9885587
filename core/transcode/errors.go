package transcode

import (
	"errors"
	"fmt"
)

// 单曲粒度的错误：不会中断整个队列的播放，只影响当前曲目。
// 协商层没有对应的错误类型——格式协商永远有兜底结果。

// ErrQueueEmpty 队列已空，没有可播放的曲目
var ErrQueueEmpty = errors.New("play queue is empty")

// ErrConcurrentStream 同一用户已有其他播放器在播放
var ErrConcurrentStream = errors.New("another stream is already active for this user")

// ErrStreamClosed Next 在流关闭后被调用
var ErrStreamClosed = errors.New("stream is closed")

// SpawnError 编码器进程无法启动（二进制缺失、权限问题等）
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start encoder %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// EncodeError 编码器进程异常退出（非零退出码或被信号杀死）
type EncodeError struct {
	Message  string
	ExitCode int
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoder failed (exit %d): %s", e.ExitCode, e.Message)
}
