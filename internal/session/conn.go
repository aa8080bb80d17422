package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection 單一 WebSocket 連接
type Connection struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	ctx    context.Context // 帶 conn_id，供日誌使用
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// ID 連接 ID
func (c *Connection) ID() string { return c.id }

// enqueue 非阻塞排入發送緩衝區；已關閉或緩衝區滿時返回 false
func (c *Connection) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close 關閉發送緩衝區，writePump 送完剩餘消息後關閉連接
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump 讀取客戶端消息
//
// 每個連接的請求依序處理：同一個客戶端的兩個請求不會交錯。
// PongWait 內沒有收到任何消息（包括 Pong）就視為死連接。
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket 讀取錯誤", "error", err)
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.logger.Error("設置讀取期限失敗", "error", err)
		}

		if messageType != websocket.TextMessage {
			continue
		}

		reply := c.hub.handle(c, message)
		data, err := encode(reply)
		if err != nil {
			c.logger.Error("序列化回覆失敗", "error", err)
			continue
		}
		if !c.enqueue(data) {
			c.logger.Warn("回覆無法排入緩衝區，關閉連接")
			return
		}
	}
}

// writePump 寫入消息到客戶端，並定期發送 Ping
func (c *Connection) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 緩衝區已關閉，送出關閉幀（忽略錯誤，連接可能已斷）
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
