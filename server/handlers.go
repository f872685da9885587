package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"AriaFM/config"
	"AriaFM/core/auth"
	"AriaFM/core/transcode"
	"AriaFM/logger"
	"AriaFM/repository"
)

// APIHandler bundles the collaborators every HTTP handler needs.
type APIHandler struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	trackRepo    repository.TrackRepository
	queueRepo    repository.QueueRepository
	historyRepo  repository.HistoryRepository
	orchestrator *transcode.Orchestrator
	hub          *NowPlayingHub
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	trackRepo repository.TrackRepository,
	queueRepo repository.QueueRepository,
	historyRepo repository.HistoryRepository,
	orchestrator *transcode.Orchestrator,
	hub *NowPlayingHub,
) *APIHandler {
	return &APIHandler{
		cfg:          cfg,
		userRepo:     userRepo,
		trackRepo:    trackRepo,
		queueRepo:    queueRepo,
		historyRepo:  historyRepo,
		orchestrator: orchestrator,
		hub:          hub,
	}
}

type contextKey string

const userIDKey contextKey = "userID"

// AuthMiddleware 校验 Bearer Token，把用户 ID 放进请求上下文
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
		if err != nil {
			logger.Warn("令牌校验失败", logger.ErrorField(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next(w, r.WithContext(ctx))
	}
}

// bearerToken 从 Authorization 头或 token 查询参数取令牌。
// 媒体播放器一般没法带自定义请求头。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// userIDFromContext returns the authenticated user's ID.
func userIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// writeJSON serializes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写响应失败", logger.ErrorField(err))
	}
}

// parseAcceptHeader 把 Accept 头解析成有序的媒体类型列表，
// 丢掉 q 值等参数，保留客户端写的顺序
func parseAcceptHeader(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	types := make([]string, 0, len(parts))
	for _, part := range parts {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType != "" {
			types = append(types, mediaType)
		}
	}
	return types
}
