package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"AriaFM/logger"
)

// GetTracksHandler 返回用户的全部曲目
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	tracks, err := h.trackRepo.GetAllTracksByUserID(userID)
	if err != nil {
		logger.Error("查询曲目失败", logger.Int64("userID", userID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// EnqueueRequest represents the enqueue request body.
type EnqueueRequest struct {
	TrackID int64 `json:"trackId"`
}

// EnqueueHandler 把曲目追加到用户的播放队列
func (h *APIHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	track, err := h.trackRepo.GetTrackByID(req.TrackID)
	if err != nil {
		logger.Error("查询曲目失败", logger.Int64("trackID", req.TrackID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil || track.State != 1 {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	if track.UserID != userID {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	entryID, err := h.queueRepo.Enqueue(userID, req.TrackID)
	if err != nil {
		logger.Error("入队失败", logger.Int64("trackID", req.TrackID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Info("曲目已入队",
		logger.Int64("userID", userID),
		logger.Int64("trackID", req.TrackID),
		logger.Int64("entryID", entryID))

	writeJSON(w, http.StatusCreated, map[string]int64{"entryId": entryID})
}

// QueueHandler 返回用户待播的队列
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	entries, err := h.queueRepo.ListForUser(userID)
	if err != nil {
		logger.Error("查询队列失败", logger.Int64("userID", userID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HistoryHandler 返回用户最近的播放历史
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.historyRepo.RecentForUser(userID, limit)
	if err != nil {
		logger.Error("查询播放历史失败", logger.Int64("userID", userID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
