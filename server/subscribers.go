package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"AriaFM/cache"
	"AriaFM/core/events"
	"AriaFM/logger"
	"AriaFM/model"
	"AriaFM/repository"
)

// wsMessage 推给界面的事件载荷
type wsMessage struct {
	Type         string       `json:"type"`
	Track        *model.Track `json:"track,omitempty"`
	Seconds      float64      `json:"seconds,omitempty"`
	Bitrate      int          `json:"bitrate,omitempty"`
	SecondsAhead float64      `json:"secondsAhead,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// RegisterNowPlayingSubscriber 把转码事件接到 Redis 快照和 WebSocket
// 推送上：start/progress 刷新快照，end 清掉。
func RegisterNowPlayingSubscriber(bus *events.Bus, hub *NowPlayingHub) {
	bus.SubscribeAll(func(event events.Event) {
		msg := wsMessage{Type: event.Name, Track: event.Track}

		switch event.Name {
		case events.TranscodingStart:
			writeSnapshot(event)

		case events.TranscodingProgress:
			msg.Seconds = event.Seconds
			msg.Bitrate = event.Bitrate
			msg.SecondsAhead = event.SecondsAhead
			writeSnapshot(event)

		case events.TranscodingEnd:
			if event.Err != nil {
				msg.Error = event.Err.Error()
			}
			clearSnapshot(event.UserID)
		}

		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("序列化推送消息失败", logger.ErrorField(err))
			return
		}
		hub.Broadcast(event.UserID, data)
	})
}

func writeSnapshot(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	np := &cache.NowPlaying{
		UserID:       event.UserID,
		TrackID:      event.Track.ID,
		Title:        event.Track.Title,
		Artist:       event.Track.Artist,
		Album:        event.Track.Album,
		Seconds:      event.Seconds,
		Bitrate:      event.Bitrate,
		SecondsAhead: event.SecondsAhead,
		UpdatedAt:    time.Now().Unix(),
	}
	if err := cache.SetNowPlaying(ctx, np); err != nil {
		logger.Warn("写正在播放缓存失败", logger.ErrorField(err))
	}
}

func clearSnapshot(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.ClearNowPlaying(ctx, userID); err != nil {
		logger.Warn("清正在播放缓存失败", logger.ErrorField(err))
	}
}

// Scrobbler 根据进度事件决定一首曲目算不算"听过"：送出的秒数过半
// （或曲目时长未知时超过 4 分钟）就记一条播放历史。
type Scrobbler struct {
	history repository.HistoryRepository

	mu      sync.Mutex
	seconds map[int64]float64 // queue entry ID → 最新送出秒数
}

// NewScrobbler creates a Scrobbler writing into the history repository.
func NewScrobbler(history repository.HistoryRepository) *Scrobbler {
	return &Scrobbler{history: history, seconds: make(map[int64]float64)}
}

// scrobbleFallbackSeconds 曲目时长未知时的入账门槛
const scrobbleFallbackSeconds = 240

// Register subscribes the scrobbler to the event bus.
func (s *Scrobbler) Register(bus *events.Bus) {
	bus.Subscribe(events.TranscodingProgress, func(event events.Event) {
		s.mu.Lock()
		s.seconds[event.QueueEntryID] = event.Seconds
		s.mu.Unlock()
	})

	bus.Subscribe(events.TranscodingEnd, func(event events.Event) {
		s.mu.Lock()
		played := s.seconds[event.QueueEntryID]
		delete(s.seconds, event.QueueEntryID)
		s.mu.Unlock()

		if !s.eligible(event.Track, played) {
			return
		}

		entry := &model.PlayHistory{
			UserID:        event.UserID,
			TrackID:       event.Track.ID,
			Title:         event.Track.Title,
			Artist:        event.Track.Artist,
			Album:         event.Track.Album,
			PlayedSeconds: played,
			Completed:     event.Err == nil,
			PlayedAt:      time.Now(),
		}
		if err := s.history.Record(entry); err != nil {
			logger.Warn("写播放历史失败",
				logger.Int64("trackID", event.Track.ID),
				logger.ErrorField(err))
			return
		}
		logger.Debug("已记录播放历史",
			logger.Int64("trackID", event.Track.ID),
			logger.Float64("playedSeconds", played))
	})
}

func (s *Scrobbler) eligible(track *model.Track, played float64) bool {
	if played <= 0 {
		return false
	}
	if track.Duration > 0 {
		return played >= track.Duration/2
	}
	return played >= scrobbleFallbackSeconds
}
