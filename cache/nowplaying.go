package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NowPlaying 是推送给界面的"正在播放"快照，由转码事件订阅者写入
type NowPlaying struct {
	UserID       int64   `json:"userId"`
	TrackID      int64   `json:"trackId"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album"`
	Seconds      float64 `json:"seconds"`      // 编码器已输出的秒数
	Bitrate      int     `json:"bitrate"`      // 当前比特率估计 (bps)
	SecondsAhead float64 `json:"secondsAhead"` // 相对实时播放的提前量
	UpdatedAt    int64   `json:"updatedAt"`
}

const nowPlayingTTL = 120 * time.Second

func nowPlayingKey(userID int64) string {
	return fmt.Sprintf("nowplaying:%d", userID)
}

// SetNowPlaying 写入正在播放快照
func SetNowPlaying(ctx context.Context, np *NowPlaying) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(np)
	if err != nil {
		return fmt.Errorf("failed to marshal now playing snapshot: %w", err)
	}

	if err := RedisClient.Set(ctx, nowPlayingKey(np.UserID), data, nowPlayingTTL).Err(); err != nil {
		return fmt.Errorf("failed to set now playing cache: %w", err)
	}
	return nil
}

// GetNowPlaying 读取正在播放快照，未命中返回 nil
func GetNowPlaying(ctx context.Context, userID int64) (*NowPlaying, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := RedisClient.Get(ctx, nowPlayingKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get now playing cache: %w", err)
	}

	np := &NowPlaying{}
	if err := json.Unmarshal(data, np); err != nil {
		return nil, fmt.Errorf("failed to unmarshal now playing snapshot: %w", err)
	}
	return np, nil
}

// ClearNowPlaying 清除正在播放快照（转码结束时调用）
func ClearNowPlaying(ctx context.Context, userID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Del(ctx, nowPlayingKey(userID)).Err()
}
