// Package events 房間領域事件
//
// 系統設計問題：
//   房間內發生的重要事情（創建、換階段、結算、關閉）要讓誰知道？
//
// 設計方案：
//   ✅ Publisher 介面 - 房間 actor 只依賴介面，不知道下游是 NATS 還是結果存儲
//   ✅ Multi 扇出 - 一個事件同時交給多個下游，錯誤合併返回
//   ✅ 不阻塞 - 下游實作必須快速返回（NATS 本身有發送緩衝，結果記錄器走 channel）
//
// 與 WebSocket 推送的區別：
//   - 推送給玩家的通知在 session 層，只發給房間內的連接
//   - 這裡的事件面向其他系統（統計、審計），不含任何棋盤內容
package events

import (
	"context"
	"errors"
	"time"
)

// Type 事件類型
type Type string

const (
	RoomCreated  Type = "room_created"
	PhaseChanged Type = "phase_changed"
	GameFinished Type = "game_finished"
	RoomClosed   Type = "room_closed"
)

// Event 領域事件
//
// RoomCode 相當於聚合根 ID：同一房間的事件發布到同一個 subject，順序一致。
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	RoomCode  string      `json:"room_code"`
	Phase     string      `json:"phase,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Result    *GameResult `json:"result,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Version   int         `json:"version"` // 同一房間內遞增
}

// GameResult 一局的結算摘要（不含艦隊佈署）
type GameResult struct {
	RoomCode   string    `json:"room_code"`
	WinnerID   string    `json:"winner_id"`
	WinnerName string    `json:"winner_name"`
	LoserID    string    `json:"loser_id"`
	LoserName  string    `json:"loser_name"`
	Reason     string    `json:"reason"`
	Shots      int       `json:"shots"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration 對局時長；未進入交戰（佈署階段棄權）時為 0
func (r GameResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Publisher 事件發布者
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi 把事件交給每一個 Publisher
//
// 某個下游失敗不影響其他下游，所有錯誤合併返回。
type Multi []Publisher

// Publish 實現 Publisher
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 丟棄所有事件
type Nop struct{}

// Publish 實現 Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Func 把函數轉成 Publisher（測試與簡單訂閱用）
type Func func(ctx context.Context, ev Event) error

// Publish 實現 Publisher
func (f Func) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
