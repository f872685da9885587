package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"AriaFM/logger"
	"AriaFM/model"
	"AriaFM/repository"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监视本地曲库目录，把新增/修改的音频文件探测后写入曲目表，
// 删除的文件做软删除。扫描出的曲目归属 OwnerID。
type Watcher struct {
	MusicDir string
	OwnerID  int64

	prober *Prober
	tracks repository.TrackRepository
}

// NewWatcher creates a library watcher rooted at musicDir.
func NewWatcher(musicDir string, ownerID int64, prober *Prober, tracks repository.TrackRepository) *Watcher {
	return &Watcher{
		MusicDir: musicDir,
		OwnerID:  ownerID,
		prober:   prober,
		tracks:   tracks,
	}
}

// ScanAll 全量扫描曲库目录，服务启动时调用一次
func (w *Watcher) ScanAll() error {
	count := 0
	err := filepath.WalkDir(w.MusicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsAudioFile(path) {
			return nil
		}
		if err := w.indexFile(path); err != nil {
			logger.Warn("曲目入库失败，跳过",
				logger.String("path", path),
				logger.ErrorField(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("曲库全量扫描完成",
		logger.String("dir", w.MusicDir),
		logger.Int("tracks", count))
	return nil
}

// Watch 阻塞运行，持续监视目录变更直到 ctx 取消。
// 新建的子目录会被自动加入监视。
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// 递归注册已有目录
	err = filepath.WalkDir(w.MusicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("开始监视曲库目录", logger.String("dir", w.MusicDir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("曲库监视出错", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				logger.Warn("注册新目录失败",
					logger.String("path", event.Name),
					logger.ErrorField(err))
			}
			return
		}
		w.indexLater(event.Name)

	case event.Op.Has(fsnotify.Write):
		w.indexLater(event.Name)

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.deactivate(event.Name)
	}
}

// indexLater 等写入落定后再探测。拷贝大文件会触发一串 Write 事件，
// 立即探测经常读到半截文件。
func (w *Watcher) indexLater(path string) {
	if !IsAudioFile(path) {
		return
	}
	go func() {
		time.Sleep(2 * time.Second)
		if err := w.indexFile(path); err != nil {
			logger.Warn("曲目入库失败",
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}()
}

// indexFile 探测文件并写入曲目表
func (w *Watcher) indexFile(path string) error {
	info, err := w.prober.Probe(path)
	if err != nil {
		return err
	}

	track := &model.Track{
		UserID:      w.OwnerID,
		Title:       info.Title,
		Artist:      info.Artist,
		Album:       info.Album,
		TrackNumber: info.TrackNumber,
		FilePath:    path,
		Format:      info.Format,
		Bitrate:     info.Bitrate,
		Duration:    info.Duration,
		State:       1,
	}

	if _, err := w.tracks.UpsertTrackByPath(track); err != nil {
		return err
	}

	logger.Debug("曲目已入库",
		logger.String("path", path),
		logger.String("format", info.Format),
		logger.Float64("duration", info.Duration))
	return nil
}

// deactivate 源文件没了就把曲目软删除
func (w *Watcher) deactivate(path string) {
	if !IsAudioFile(path) {
		return
	}
	track, err := w.tracks.GetTrackByUserIDAndFilePath(w.OwnerID, path)
	if err != nil || track == nil {
		return
	}
	if err := w.tracks.SetTrackState(track.ID, 0); err != nil {
		logger.Warn("软删除曲目失败",
			logger.Int64("trackID", track.ID),
			logger.ErrorField(err))
		return
	}
	logger.Info("曲目源文件已移除，标记下线",
		logger.Int64("trackID", track.ID),
		logger.String("path", path))
}
