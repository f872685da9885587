package transcode

import (
	"context"
	"io"
	"sync"
	"time"

	"AriaFM/core/events"
	"AriaFM/logger"
	"AriaFM/model"
)

// QueueItem 队列游标吐出的一项：待播曲目和它的续播偏移
type QueueItem struct {
	EntryID       int64
	Track         *model.Track
	ResumeSeconds float64
}

// QueueCursor 是队列协作方。编排器只消费它，不拥有队列的持久化。
type QueueCursor interface {
	// Next 返回用户的下一项，队列耗尽时返回 (nil, nil)
	Next(userID int64) (*QueueItem, error)
	MarkPlayed(entryID int64) error
	RecordError(entryID int64, message string) error
	RecordPosition(entryID int64, seconds float64) error
}

// SourceResolver 把曲目落成本地可读文件。本地库直接返回路径，
// 对象存储的源先取到临时文件。cleanup 在曲目播完后调用。
type SourceResolver interface {
	Resolve(ctx context.Context, track *model.Track) (path string, cleanup func(), err error)
}

// LocalSourceResolver 曲目文件就在本地文件系统上
type LocalSourceResolver struct{}

func (LocalSourceResolver) Resolve(_ context.Context, track *model.Track) (string, func(), error) {
	return track.FilePath, func() {}, nil
}

// Orchestrator 驱动整条流水线：逐首取队列曲目，协商格式，启动编码
// 会话，经节奏读取器把字节交给消费者，并发布生命周期事件。
type Orchestrator struct {
	Supervisor *Supervisor
	Registry   *Registry
	Queue      QueueCursor
	Resolver   SourceResolver
	Sink       events.Sink
	Lead       time.Duration
}

// NewOrchestrator 组装编排器。resolver 为 nil 时使用本地文件
func NewOrchestrator(sup *Supervisor, reg *Registry, queue QueueCursor, resolver SourceResolver, sink events.Sink, lead time.Duration) *Orchestrator {
	if resolver == nil {
		resolver = LocalSourceResolver{}
	}
	if lead <= 0 {
		lead = 3 * time.Second
	}
	return &Orchestrator{
		Supervisor: sup,
		Registry:   reg,
		Queue:      queue,
		Resolver:   resolver,
		Sink:       sink,
		Lead:       lead,
	}
}

// Stream 是交给 HTTP 层消费的拉式字节流。Close 会确定性地终止
// 底层编码进程，不依赖垃圾回收。
type Stream struct {
	// Format 第一首曲目协商出的输出格式，用作整条响应的 Content-Type
	Format string
	// FirstTrack 流开头的曲目，调用方做展示用
	FirstTrack *model.Track

	ch     chan []byte
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	err    error
}

// Next 返回下一块字节。队列播完返回 io.EOF，流被关闭返回
// ErrStreamClosed。
func (s *Stream) Next() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	s.mu.Unlock()

	data, ok := <-s.ch
	if !ok {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return data, nil
}

// Close 终止流。幂等。
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	// 排空通道让生产者尽快退出
	for range s.ch {
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Start 为用户开启一条流。单飞检查在任何子进程启动之前完成：
// 不同播放器的并发请求拿到 ErrConcurrentStream，同一播放器顶替
// 旧流。队列为空返回 ErrQueueEmpty。override 非 nil 时跳过协商，
// 强制使用给定策略。
func (o *Orchestrator) Start(ctx context.Context, userID int64, userAgent string, accepts []string, override *Strategy) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	lease, err := o.Registry.Begin(userID, userAgent, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	first, err := o.Queue.Next(userID)
	if err != nil {
		lease.Release()
		cancel()
		return nil, err
	}
	if first == nil {
		lease.Release()
		cancel()
		return nil, ErrQueueEmpty
	}

	sel := o.selection(first.Track, userAgent, accepts, override)

	stream := &Stream{
		Format:     sel.Format,
		FirstTrack: first.Track,
		ch:         make(chan []byte),
		cancel:     cancel,
	}

	logger.Info("开始流式播放",
		logger.Int64("userID", userID),
		logger.String("userAgent", userAgent),
		logger.String("format", sel.Format),
		logger.Int64("firstTrackID", first.Track.ID))

	go o.run(streamCtx, stream, lease, userID, userAgent, accepts, override, first)

	return stream, nil
}

func (o *Orchestrator) selection(track *model.Track, userAgent string, accepts []string, override *Strategy) Selection {
	if override != nil {
		format := NormalizeFormat(track.Format)
		if override.Kind == StrategyReencode {
			format = codecSpecs[override.Codec].mediaType
		}
		return Selection{Strategy: *override, Format: format}
	}
	return Select(track, userAgent, accepts)
}

// run 是每条流的主循环：严格串行地处理队列曲目，单曲失败只结束
// 该曲目，队列继续。退出前保证释放注册并关闭通道。
func (o *Orchestrator) run(ctx context.Context, stream *Stream, lease *Lease, userID int64, userAgent string, accepts []string, override *Strategy, first *QueueItem) {
	defer close(stream.ch)
	defer lease.Release()

	item := first
	for item != nil {
		if ctx.Err() != nil {
			return
		}

		o.playOne(ctx, stream, userID, userAgent, accepts, override, item)

		if ctx.Err() != nil {
			// 连接已断，不再取下一首
			return
		}

		next, err := o.Queue.Next(userID)
		if err != nil {
			logger.Error("读取队列失败，结束流",
				logger.Int64("userID", userID),
				logger.ErrorField(err))
			stream.fail(err)
			return
		}
		item = next
	}

	logger.Info("队列播放完毕", logger.Int64("userID", userID))
}

// playOne 播放单首曲目：协商、启动编码会话、按节奏交付、收尾。
// 单曲错误在这里消化，只通过 end 事件和队列错误记录对外暴露。
func (o *Orchestrator) playOne(ctx context.Context, stream *Stream, userID int64, userAgent string, accepts []string, override *Strategy, item *QueueItem) {
	track := item.Track
	sel := o.selection(track, userAgent, accepts, override)

	// start 事件先于任何字节发出
	o.Sink.Emit(events.Event{
		Name:         events.TranscodingStart,
		UserID:       userID,
		Track:        track,
		QueueEntryID: item.EntryID,
	})

	path, cleanup, err := o.Resolver.Resolve(ctx, track)
	if err != nil {
		o.endTrack(ctx, userID, item, err)
		return
	}
	defer cleanup()

	session, err := o.Supervisor.Acquire(ctx, track, path, sel.Strategy, item.ResumeSeconds)
	if err != nil {
		o.endTrack(ctx, userID, item, err)
		return
	}

	// 固定提前量：让编码器先跑一段，后续抖动不至于饿着客户端缓冲
	select {
	case <-time.After(o.Lead):
	case <-ctx.Done():
		session.Terminate()
		o.finalEnd(userID, item)
		return
	}

	reader := NewPacedReader(session, o.Lead)
	for {
		chunk, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// 取消或读错误：确定性回收子进程，补一个最终 end
			session.Terminate()
			o.finalEnd(userID, item)
			return
		}

		select {
		case stream.ch <- chunk.Data:
		case <-ctx.Done():
			session.Terminate()
			o.finalEnd(userID, item)
			return
		}

		secondsAhead := reader.SecondsAhead()
		o.Sink.Emit(events.Event{
			Name:         events.TranscodingProgress,
			UserID:       userID,
			Track:        track,
			QueueEntryID: item.EntryID,
			Seconds:      chunk.ElapsedSeconds,
			Bitrate:      chunk.Bitrate,
			SecondsAhead: secondsAhead,
		})

		if err := o.Queue.RecordPosition(item.EntryID, chunk.ElapsedSeconds); err != nil {
			logger.Warn("记录播放位置失败",
				logger.Int64("entryID", item.EntryID),
				logger.ErrorField(err))
		}
	}

	o.endTrack(ctx, userID, item, session.Finalize())
}

// endTrack 发出 end/done 事件并更新队列。failure 非 nil 时把错误
// 记到队列项上；无论成败都把该项标记为已播，队列继续前进。
func (o *Orchestrator) endTrack(ctx context.Context, userID int64, item *QueueItem, failure error) {
	o.Sink.Emit(events.Event{
		Name:         events.TranscodingEnd,
		UserID:       userID,
		Track:        item.Track,
		QueueEntryID: item.EntryID,
		Err:          failure,
	})

	if failure != nil {
		logger.Error("曲目播放失败，跳到下一首",
			logger.Int64("trackID", item.Track.ID),
			logger.ErrorField(failure))
		if err := o.Queue.RecordError(item.EntryID, failure.Error()); err != nil {
			logger.Warn("记录队列错误失败", logger.ErrorField(err))
		}
	}

	if ctx.Err() != nil {
		// 取消路径：end 是最后一个事件
		return
	}

	if err := o.Queue.MarkPlayed(item.EntryID); err != nil {
		logger.Warn("标记已播失败", logger.Int64("entryID", item.EntryID), logger.ErrorField(err))
	}

	o.Sink.Emit(events.Event{
		Name:         events.TranscodingDone,
		UserID:       userID,
		Track:        item.Track,
		QueueEntryID: item.EntryID,
	})
}

// finalEnd 取消路径上的收尾：只发最后一个 end，不再发 done
func (o *Orchestrator) finalEnd(userID int64, item *QueueItem) {
	o.Sink.Emit(events.Event{
		Name:         events.TranscodingEnd,
		UserID:       userID,
		Track:        item.Track,
		QueueEntryID: item.EntryID,
	})
}
