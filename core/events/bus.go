package events

import (
	"sync"

	"AriaFM/model"
)

// 转码生命周期事件名
const (
	TranscodingStart    = "transcoding.start"
	TranscodingProgress = "transcoding.progress"
	TranscodingEnd      = "transcoding.end"
	TranscodingDone     = "transcoding.done"
)

// Event 是转码管线对外发布的生命周期事件
type Event struct {
	Name         string
	UserID       int64
	Track        *model.Track
	QueueEntryID int64

	// progress 事件携带的字段
	Seconds      float64 // 编码器已输出的秒数
	Bitrate      int     // 当前比特率估计 (bps)
	SecondsAhead float64 // 相对实时播放的提前量

	// end 事件携带的失败信息，成功时为 nil
	Err error
}

// Sink 是编排器依赖的事件出口。显式注入，不使用全局状态。
type Sink interface {
	Emit(event Event)
}

// Handler 处理单个事件
type Handler func(event Event)

// Bus 是进程内的事件总线，实现 Sink。
// 分发是同步的，订阅者需要保证处理足够快（或自行异步）。
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe 订阅指定名称的事件
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// SubscribeAll 订阅全部事件
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Emit 分发事件给所有匹配的订阅者
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	named := b.handlers[event.Name]
	all := b.all
	b.mu.RUnlock()

	for _, h := range named {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}
