package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AriaFM/cache"
	"AriaFM/config"
	"AriaFM/core/events"
	"AriaFM/core/library"
	"AriaFM/core/transcode"
	"AriaFM/db"
	"AriaFM/logger"
	"AriaFM/repository"
	"AriaFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes all collaborators and runs the HTTP server until
// an interrupt arrives.
func Start() {
	cfg := config.Load()

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("数据库初始化失败", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("GORM 连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Redis 连接失败", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	// 曲库放在对象存储时才需要 MinIO
	var resolver transcode.SourceResolver
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Fatal("MinIO 初始化失败", logger.ErrorField(err))
		}
		resolver = storage.NewObjectSourceResolver(storage.GetMinioClient(), cfg.MinioBucket)
	}

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	queueRepo := repository.NewMySQLQueueRepository()
	historyRepo := repository.NewGormHistoryRepository(db.GormDB)

	// 事件总线和它的订阅者
	bus := events.NewBus()
	hub := NewNowPlayingHub()
	RegisterNowPlayingSubscriber(bus, hub)
	NewScrobbler(historyRepo).Register(bus)

	// 转码管线
	registry := transcode.NewRegistry()
	supervisor := transcode.NewSupervisor(cfg.FFmpegPath)
	cursor := newQueueCursor(queueRepo, trackRepo)
	orchestrator := transcode.NewOrchestrator(
		supervisor, registry, cursor, resolver, bus,
		time.Duration(cfg.StreamLeadSeconds)*time.Second)

	apiHandler := NewAPIHandler(cfg, userRepo, trackRepo, queueRepo, historyRepo, orchestrator, hub)

	// 后台扫描并监视本地曲库
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := library.NewWatcher(cfg.MusicDir, cfg.LibraryOwnerID, library.NewProber(cfg.FFprobePath), trackRepo)
	go func() {
		if err := watcher.ScanAll(); err != nil {
			logger.Error("曲库扫描失败", logger.ErrorField(err))
		}
		if err := watcher.Watch(watchCtx); err != nil && err != context.Canceled {
			logger.Error("曲库监视退出", logger.ErrorField(err))
		}
	}()

	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// 用户认证
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 曲库和播放队列
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.QueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", apiHandler.AuthMiddleware(apiHandler.EnqueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/history", apiHandler.AuthMiddleware(apiHandler.HistoryHandler)).Methods(http.MethodGet)

	// 正在播放
	router.HandleFunc("/api/nowplaying", apiHandler.AuthMiddleware(apiHandler.NowPlayingHandler)).Methods(http.MethodGet)
	router.HandleFunc("/ws/nowplaying", apiHandler.AuthMiddleware(apiHandler.NowPlayingWSHandler)).Methods(http.MethodGet)

	// 音频流
	router.HandleFunc("/stream", apiHandler.AuthMiddleware(apiHandler.StreamHandler)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// 音频流是长响应，不能设 WriteTimeout
		IdleTimeout: 120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("正在关闭服务器...")

	// 先掐断所有活跃流，让编码进程确定性退出
	registry.CancelAll()
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务器已停止")
}
