package server

import (
	"errors"
	"io"
	"net/http"

	"AriaFM/core/transcode"
	"AriaFM/logger"
)

// StreamHandler 长连接音频流。协商输出格式，逐块写出编码器的产出，
// 直到队列播完或客户端断开。
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	// 一些播放器用 dead=true 探测服务是否存活，约定直接拒绝，
	// 不为探测请求启动任何编码进程
	if r.URL.Query().Get("dead") == "true" {
		http.Error(w, "Stream rejected", http.StatusServiceUnavailable)
		return
	}

	userAgent := r.Header.Get("User-Agent")
	accepts := parseAcceptHeader(r.Header.Get("Accept"))

	stream, err := h.orchestrator.Start(r.Context(), userID, userAgent, accepts, nil)
	if err != nil {
		switch {
		case errors.Is(err, transcode.ErrConcurrentStream):
			http.Error(w, "Another stream is already active", http.StatusServiceUnavailable)
		case errors.Is(err, transcode.ErrQueueEmpty):
			http.Error(w, "Nothing to play", http.StatusServiceUnavailable)
		default:
			logger.Error("开流失败", logger.Int64("userID", userID), logger.ErrorField(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	defer stream.Close()

	flusher, canFlush := w.(http.Flusher)

	// Content-Type 来自第一首曲目的协商结果，整条响应沿用
	w.Header().Set("Content-Type", stream.Format)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	for {
		data, err := stream.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Warn("流中断",
				logger.Int64("userID", userID),
				logger.ErrorField(err))
			return
		}

		if _, err := w.Write(data); err != nil {
			// 客户端断开，defer 的 Close 负责终止编码进程
			logger.Info("客户端断开连接", logger.Int64("userID", userID))
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
