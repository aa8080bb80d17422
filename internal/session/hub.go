// Package session 把 WebSocket 連接翻譯成房間操作
//
// 系統設計問題：
//   連接是暫時的，玩家身份不是。斷線重連後同一個玩家換了一個連接，
//   房間狀態與通知要跟著玩家走，而不是跟著 socket 走。
//
// 核心挑戰：
//   1. 身份綁定：connID → {playerID, roomCode} 的顯式會話表
//   2. 重連競爭：新連接接手玩家後，舊連接的關閉不能再觸發斷線
//   3. 慢客戶端：房間 actor 推送通知不能被任何一個連接阻塞
//   4. 心跳：偵測半開連接，讓寬限期計時器有機會啟動
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理連接與會話表
//   ✅ 擁有者檢查 - 只有 byPlayer 指向的連接關閉才通知房間斷線
//   ✅ 緩衝 channel - Notify 非阻塞，緩衝區滿就關閉連接，客戶端重連後重新同步
//   ✅ Ping/Pong 心跳 - 預設 54s/60s
package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/milenrab97/battleships/internal/lobby"
	"github.com/milenrab97/battleships/pkg/logger"
)

// Config 連接參數
type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RequestTimeout time.Duration // 單一請求等待房間 actor 的上限
	AllowedOrigins []string      // 空表示允許所有來源
}

// DefaultConfig 預設連接參數
func DefaultConfig() Config {
	return Config{
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
		RequestTimeout: 5 * time.Second,
	}
}

// Hub WebSocket 連接中心，同時實現 lobby.Notifier
type Hub struct {
	registry *lobby.Registry
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection // connID → Connection
	sessions    *sessionTable
	locks       *playerLocks
	stopped     bool
}

// NewHub 創建 Hub
//
// 呼叫者需要再執行 registry.SetNotifier(hub)，房間通知才會送到連接。
func NewHub(registry *lobby.Registry, cfg Config, logger *slog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = def.PingPeriod
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	hub := &Hub{
		registry:    registry,
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
		sessions:    newSessionTable(),
		locks:       newPlayerLocks(),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return hub
}

func (hub *Hub) checkOrigin(r *http.Request) bool {
	if len(hub.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.Contains(hub.cfg.AllowedOrigins, u.Host) ||
		slices.Contains(hub.cfg.AllowedOrigins, origin)
}

// ServeWS 處理 WebSocket 連接
//
// 連接建立時是匿名的，createRoom / joinRoom / reconnect 才綁定玩家。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	hub.mu.RLock()
	stopped := hub.stopped
	hub.mu.RUnlock()
	if stopped {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("升級 WebSocket 失敗", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	c := &Connection{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, hub.cfg.SendBuffer),
		hub:    hub,
		ctx:    logger.WithConnID(context.Background(), id),
		logger: hub.logger.With("conn_id", id),
	}

	if !hub.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	c.logger.Debug("WebSocket 連接建立", "remote_addr", r.RemoteAddr)
}

func (hub *Hub) register(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.stopped {
		return false
	}
	hub.connections[c.id] = c
	return true
}

// unregister 移除連接；如果它仍擁有某個玩家，通知房間斷線
func (hub *Hub) unregister(c *Connection) {
	hub.mu.Lock()
	if hub.connections[c.id] == c {
		delete(hub.connections, c.id)
	}
	hub.mu.Unlock()
	c.close()

	bound, ok := hub.sessions.lookup(c.id)
	if !ok {
		return
	}
	unlock := hub.locks.lock(bound.PlayerID)
	defer unlock()

	s, owner := hub.sessions.unbind(c.id)
	if !owner {
		return
	}

	actor, err := hub.registry.GetRoom(s.RoomCode)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(logger.WithPlayerID(c.ctx, s.PlayerID), hub.cfg.RequestTimeout)
	defer cancel()
	if err := actor.Disconnect(ctx, s.PlayerID); err != nil {
		c.logger.DebugContext(ctx, "斷線處理略過", "room_code", s.RoomCode, "error", err)
	}
}

func (hub *Hub) connection(id string) (*Connection, bool) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	c, ok := hub.connections[id]
	return c, ok
}

// Notify 實現 lobby.Notifier
//
// 在房間 actor 的 goroutine 內執行，只做非阻塞寫入。
func (hub *Hub) Notify(playerID string, ev lobby.Event) {
	connID, ok := hub.sessions.connOf(playerID)
	if !ok {
		return
	}
	if ev.Type == lobby.EventRoomClosed {
		// 客戶端收到通知時會話已解除，可以立刻建立或加入新房間
		hub.sessions.unbindPlayer(playerID)
	}
	c, ok := hub.connection(connID)
	if !ok {
		return
	}

	msg, err := notification(ev)
	if err != nil {
		hub.logger.Error("序列化通知失敗", "event", ev.Type, "error", err)
		return
	}
	if !c.enqueue(msg) {
		// 客戶端重連後以快照重新同步
		c.logger.Warn("連接緩衝區滿，關閉連接", "player_id", playerID, "event", ev.Type)
		_ = c.conn.Close()
	}
}

// DisconnectPlayer 關閉玩家當前的連接
func (hub *Hub) DisconnectPlayer(playerID string) bool {
	connID, ok := hub.sessions.connOf(playerID)
	if !ok {
		return false
	}
	c, ok := hub.connection(connID)
	if !ok {
		return false
	}
	_ = c.conn.Close()
	return true
}

// ConnectionCount 當前連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// SessionCount 已綁定玩家的連接數
func (hub *Hub) SessionCount() int {
	return hub.sessions.size()
}

// Stop 停止接受新連接並關閉所有連接
//
// 應在 registry.Stop 之後呼叫，讓 roomClosed 通知先排入各連接的緩衝區；
// writePump 會先送完緩衝區再送出關閉幀。
func (hub *Hub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	conns := make([]*Connection, 0, len(hub.connections))
	for _, c := range hub.connections {
		conns = append(conns, c)
	}
	hub.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}
