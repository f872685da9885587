package server

import (
	"AriaFM/core/transcode"
	"AriaFM/logger"
	"AriaFM/repository"
)

// queueCursor 把队列仓库和曲目仓库拼成转码管线要的队列游标。
// 曲目已被软删除或查不到时直接把队列项标记为已播，游标继续前进。
type queueCursor struct {
	queue  repository.QueueRepository
	tracks repository.TrackRepository
}

func newQueueCursor(queue repository.QueueRepository, tracks repository.TrackRepository) *queueCursor {
	return &queueCursor{queue: queue, tracks: tracks}
}

func (c *queueCursor) Next(userID int64) (*transcode.QueueItem, error) {
	for {
		entry, err := c.queue.NextForUser(userID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, nil
		}

		track, err := c.tracks.GetTrackByID(entry.TrackID)
		if err != nil {
			return nil, err
		}
		if track == nil || track.State != 1 {
			logger.Warn("队列里的曲目已不可用，跳过",
				logger.Int64("entryID", entry.ID),
				logger.Int64("trackID", entry.TrackID))
			if err := c.queue.RecordError(entry.ID, "track no longer available"); err != nil {
				return nil, err
			}
			if err := c.queue.MarkPlayed(entry.ID); err != nil {
				return nil, err
			}
			continue
		}

		return &transcode.QueueItem{
			EntryID:       entry.ID,
			Track:         track,
			ResumeSeconds: entry.Position,
		}, nil
	}
}

func (c *queueCursor) MarkPlayed(entryID int64) error {
	return c.queue.MarkPlayed(entryID)
}

func (c *queueCursor) RecordError(entryID int64, message string) error {
	return c.queue.RecordError(entryID, message)
}

func (c *queueCursor) RecordPosition(entryID int64, seconds float64) error {
	return c.queue.RecordPosition(entryID, seconds)
}
