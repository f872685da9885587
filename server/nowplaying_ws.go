package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"AriaFM/cache"
	"AriaFM/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 界面和 API 不同源部署
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient 一条已连接的界面 WebSocket
type wsClient struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// NowPlayingHub 给界面推送"正在播放"更新。每个客户端订阅自己用户
// 的事件流。
type NowPlayingHub struct {
	mu      sync.RWMutex
	clients map[int64]map[*wsClient]struct{}
}

// NewNowPlayingHub creates an empty hub.
func NewNowPlayingHub() *NowPlayingHub {
	return &NowPlayingHub{clients: make(map[int64]map[*wsClient]struct{})}
}

func (h *NowPlayingHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*wsClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *NowPlayingHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
}

// Broadcast 把消息推给该用户的所有连接。发不动的慢连接直接丢消息,
// 不拖累事件分发。
func (h *NowPlayingHub) Broadcast(userID int64, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- message:
		default:
		}
	}
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

func (c *wsClient) writePump(hub *NowPlayingHub) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(hub *NowPlayingHub) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		// 客户端只收不发，读循环只为感知断开
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// NowPlayingWSHandler 升级 WebSocket 并挂到推送中心
func (h *APIHandler) NowPlayingWSHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &wsClient{userID: userID, conn: conn, send: make(chan []byte, 16)}
	h.hub.register(client)

	logger.Debug("WebSocket 客户端已连接", logger.Int64("userID", userID))

	go client.writePump(h.hub)
	go client.readPump(h.hub)
}

// NowPlayingHandler 返回 Redis 里的"正在播放"快照
func (h *APIHandler) NowPlayingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	np, err := cache.GetNowPlaying(ctx, userID)
	if err != nil {
		logger.Error("读取正在播放缓存失败", logger.Int64("userID", userID), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if np == nil {
		http.Error(w, "Nothing playing", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, np)
}
