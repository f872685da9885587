package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"AriaFM/config"
	"AriaFM/core/auth"
	"AriaFM/core/events"
	"AriaFM/core/transcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptHeader(t *testing.T) {
	assert.Nil(t, parseAcceptHeader(""))
	assert.Equal(t, []string{"*/*"}, parseAcceptHeader("*/*"))
	assert.Equal(t,
		[]string{"audio/mp3", "audio/ogg", "*/*"},
		parseAcceptHeader("audio/mp3, audio/ogg;q=0.9, */*;q=0.1"))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/stream", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/stream?token=query-token", nil)
	assert.Equal(t, "query-token", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/stream", nil)
	assert.Equal(t, "", bearerToken(r))
}

func TestAuthMiddlewarePassesUserID(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}
	h := &APIHandler{cfg: cfg}

	token, err := auth.GenerateToken(cfg.JWTSecret, 42, "alice")
	require.NoError(t, err)

	var gotID int64
	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = userIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), gotID)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	h := &APIHandler{cfg: &config.Config{JWTSecret: "test-secret"}}

	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	r := httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// emptyCursor 队列永远为空
type emptyCursor struct{}

func (emptyCursor) Next(int64) (*transcode.QueueItem, error) { return nil, nil }
func (emptyCursor) MarkPlayed(int64) error                   { return nil }
func (emptyCursor) RecordError(int64, string) error          { return nil }
func (emptyCursor) RecordPosition(int64, float64) error      { return nil }

func streamRequest(userID int64, target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	return r.WithContext(ctx)
}

func TestStreamHandlerDeadProbeShortCircuits(t *testing.T) {
	// dead=true 必须在任何子进程启动前拒绝，这里连 orchestrator 都
	// 不会被碰到
	h := &APIHandler{cfg: &config.Config{}}

	w := httptest.NewRecorder()
	h.StreamHandler(w, streamRequest(1, "/stream?dead=true"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStreamHandlerEmptyQueueIs503(t *testing.T) {
	orc := transcode.NewOrchestrator(
		transcode.NewSupervisor("ffmpeg"),
		transcode.NewRegistry(),
		emptyCursor{}, nil, events.NewBus(), time.Second)
	h := &APIHandler{cfg: &config.Config{}, orchestrator: orc}

	w := httptest.NewRecorder()
	h.StreamHandler(w, streamRequest(1, "/stream"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStreamHandlerRequiresAuth(t *testing.T) {
	h := &APIHandler{cfg: &config.Config{}}

	w := httptest.NewRecorder()
	h.StreamHandler(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
