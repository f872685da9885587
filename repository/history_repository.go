package repository

import (
	"fmt"

	"AriaFM/model"

	"gorm.io/gorm"
)

// HistoryRepository 播放历史（scrobble）仓库，使用 GORM
type HistoryRepository interface {
	Record(entry *model.PlayHistory) error
	RecentForUser(userID int64, limit int) ([]*model.PlayHistory, error)
}

type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a HistoryRepository backed by GORM.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Record 写入一条播放历史
func (r *gormHistoryRepository) Record(entry *model.PlayHistory) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record play history: %w", err)
	}
	return nil
}

// RecentForUser 返回用户最近的播放历史
func (r *gormHistoryRepository) RecentForUser(userID int64, limit int) ([]*model.PlayHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*model.PlayHistory
	err := r.db.Where("user_id = ?", userID).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query play history for user %d: %w", userID, err)
	}
	return entries, nil
}
