package transcode

import (
	"context"
	"sync"

	"AriaFM/logger"
)

// Registry 记录每个用户当前的活跃流。单飞规则：同一用户同时只允许
// 一条流；不同播放器的新请求被拒绝，同一播放器的新请求顶掉旧的
// （典型场景是同一客户端断线重连）。
// check-then-set 全程持锁，并发的两个请求不会同时通过检查。
type Registry struct {
	mu     sync.Mutex
	active map[int64]*Lease
}

// Lease 一次成功注册的凭据。流结束时 Release，被顶掉的旧 Lease
// Release 不会误清新的注册。
type Lease struct {
	registry *Registry
	userID   int64
	agent    string
	cancel   context.CancelFunc
}

// NewRegistry 创建流注册表
func NewRegistry() *Registry {
	return &Registry{active: make(map[int64]*Lease)}
}

// Begin 尝试为用户注册新流。已有不同播放器的活跃流时返回
// ErrConcurrentStream，且不产生任何副作用；同一播放器则取消旧流
// 并接管。
func (r *Registry) Begin(userID int64, agent string, cancel context.CancelFunc) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[userID]; ok {
		if existing.agent != agent {
			logger.Warn("拒绝并发流请求",
				logger.Int64("userID", userID),
				logger.String("activeAgent", existing.agent),
				logger.String("newAgent", agent))
			return nil, ErrConcurrentStream
		}
		// 同一播放器重连：顶掉旧会话
		logger.Info("同一播放器的新流顶替旧流", logger.Int64("userID", userID))
		if existing.cancel != nil {
			existing.cancel()
		}
	}

	lease := &Lease{registry: r, userID: userID, agent: agent, cancel: cancel}
	r.active[userID] = lease
	return lease, nil
}

// Release 清除注册。只有当前持有者能清掉标记，被顶掉的旧 Lease
// 调用无效果。
func (l *Lease) Release() {
	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	if l.registry.active[l.userID] == l {
		delete(l.registry.active, l.userID)
	}
}

// Agent 返回注册时的播放器标识
func (l *Lease) Agent() string {
	return l.agent
}

// ActiveAgent 返回用户当前活跃流的播放器标识
func (r *Registry) ActiveAgent(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lease, ok := r.active[userID]
	if !ok {
		return "", false
	}
	return lease.agent, true
}

// CancelAll 取消全部活跃流，服务停机时调用
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, lease := range r.active {
		if lease.cancel != nil {
			lease.cancel()
		}
		delete(r.active, userID)
	}
}
