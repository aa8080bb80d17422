// Package lobby 管理所有線上房間
//
// Registry 負責房間碼分配、查找與回收；每個房間由一個 RoomActor goroutine 擁有，
// 所有狀態變更都經由該 actor 序列化。
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/internal/game"
)

const (
	// CodeLength 房間碼長度
	CodeLength = 6

	// CodeAlphabet 房間碼字母表：去掉容易混淆的 I、O、0、1
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Config Registry 配置
type Config struct {
	GracePeriod     time.Duration // 斷線寬限期
	IdleTimeout     time.Duration // 無操作多久後關閉房間，0 表示不回收
	CleanupInterval time.Duration // 回收檢查間隔，0 表示不啟動回收迴圈
}

// DefaultConfig 預設配置
func DefaultConfig() Config {
	return Config{
		GracePeriod:     game.DefaultGracePeriod,
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Option Registry 選項
type Option func(*Registry)

// WithScheduler 注入寬限期調度器；未注入時 Registry 自己啟動一個時間輪
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.scheduler = s }
}

// WithNotifier 注入玩家通知
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithPublisher 注入領域事件發布者
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithClock 注入時鐘
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithFirstTurnPicker 注入先手選擇
func WithFirstTurnPicker(pick func(n int) int) Option {
	return func(r *Registry) { r.pick = pick }
}

// WithCodeGenerator 注入房間碼產生器
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.generate = gen }
}

// Stats 統計資訊
type Stats struct {
	TotalRooms   int                `json:"total_rooms"`
	TotalPlayers int                `json:"total_players"`
	ByPhase      map[game.Phase]int `json:"by_phase"`
}

// Registry 房間註冊表
type Registry struct {
	rooms      map[string]*RoomActor // roomCode -> actor
	playerRoom map[string]string     // playerID -> roomCode
	mu         sync.RWMutex

	cfg       Config
	logger    *slog.Logger
	scheduler Scheduler
	notifier  Notifier
	publisher events.Publisher
	now       func() time.Time
	pick      func(n int) int
	generate  func() (string, error)

	ownWheel *TimingWheel
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry 創建 Registry，並啟動閒置房間回收
func NewRegistry(cfg Config, logger *slog.Logger, opts ...Option) *Registry {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = game.DefaultGracePeriod
	}

	r := &Registry{
		rooms:      make(map[string]*RoomActor),
		playerRoom: make(map[string]string),
		cfg:        cfg,
		logger:     logger,
		notifier:   nopNotifier{},
		publisher:  events.Nop{},
		now:        time.Now,
		generate:   GenerateCode,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.scheduler == nil {
		r.ownWheel = NewTimingWheel(DefaultWheelTick, DefaultWheelSlots)
		r.ownWheel.Start()
		r.scheduler = r.ownWheel
	}

	if cfg.CleanupInterval > 0 && cfg.IdleTimeout > 0 {
		r.wg.Add(1)
		go r.cleanupLoop()
	}

	return r
}

// SetNotifier 設定玩家通知；只影響之後創建的房間，必須在開始服務前呼叫
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// GenerateCode 從 CodeAlphabet 隨機產生房間碼
//
// 字母表長度 32 整除 256，取餘數不會有偏差。
func GenerateCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("產生房間碼失敗: %w", err)
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b), nil
}

// NormalizeCode 房間碼不分大小寫
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom 創建房間，房主是唯一成員
//
// 碰撞時重新產生；在寫鎖內檢查與插入，並發創建不會拿到同一個碼。
func (r *Registry) CreateRoom(hostID, hostName string) (*RoomActor, error) {
	r.mu.Lock()
	var code string
	for {
		c, err := r.generate()
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if _, taken := r.rooms[c]; !taken {
			code = c
			break
		}
		r.logger.Debug("房間碼碰撞，重新產生", "room_code", c)
	}

	actor := newRoomActor(r, code, hostID, hostName)
	r.rooms[code] = actor
	r.playerRoom[hostID] = code
	r.mu.Unlock()

	actor.start()

	r.logger.Info("房間已創建",
		"room_code", code,
		"host_id", hostID,
		"host_name", hostName)

	return actor, nil
}

// GetRoom 依房間碼查找
func (r *Registry) GetRoom(code string) (*RoomActor, error) {
	r.mu.RLock()
	actor, exists := r.rooms[NormalizeCode(code)]
	r.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return actor, nil
}

// FindRoomByPlayer 查找玩家所在房間
func (r *Registry) FindRoomByPlayer(playerID string) (*RoomActor, error) {
	r.mu.RLock()
	code, exists := r.playerRoom[playerID]
	var actor *RoomActor
	if exists {
		actor = r.rooms[code]
	}
	r.mu.RUnlock()

	if actor == nil {
		return nil, ErrRoomNotFound
	}
	return actor, nil
}

// RemoveRoom 關閉並移除房間；房間不存在或已關閉時不做任何事
func (r *Registry) RemoveRoom(ctx context.Context, code, reason string) error {
	actor, err := r.GetRoom(code)
	if err != nil {
		return nil
	}

	if err := actor.Close(ctx, reason); err != nil && !errors.Is(err, ErrRoomClosed) {
		return fmt.Errorf("關閉房間 %s 失敗: %w", actor.code, err)
	}
	// actor 已經結束時由這裡補做移除
	r.forget(actor.code, actor)
	return nil
}

// RoomCount 線上房間數
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Stats 獲取統計資訊
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalRooms: len(r.rooms),
		ByPhase:    make(map[game.Phase]int),
	}
	for _, actor := range r.rooms {
		stats.ByPhase[actor.Phase()]++
		stats.TotalPlayers += actor.PlayerCount()
	}
	return stats
}

// Cleanup 執行一次閒置回收（公開方法供測試使用）
func (r *Registry) Cleanup(ctx context.Context) int {
	return r.cleanup(ctx)
}

// cleanupLoop 定期回收閒置房間
func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CleanupInterval)
			r.cleanup(ctx)
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) cleanup(ctx context.Context) int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.RLock()
	var idle []*RoomActor
	for _, actor := range r.rooms {
		if actor.LastActive().Before(cutoff) {
			idle = append(idle, actor)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, actor := range idle {
		if err := r.RemoveRoom(ctx, actor.code, CloseReasonIdle); err != nil {
			r.logger.Warn("回收閒置房間失敗", "room_code", actor.code, "error", err)
			continue
		}
		closed++
		r.logger.Info("閒置房間已回收", "room_code", actor.code)
	}
	return closed
}

// Stop 停止回收迴圈並關閉所有房間
func (r *Registry) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	r.mu.RLock()
	actors := make([]*RoomActor, 0, len(r.rooms))
	for _, actor := range r.rooms {
		actors = append(actors, actor)
	}
	r.mu.RUnlock()

	for _, actor := range actors {
		if err := r.RemoveRoom(ctx, actor.code, CloseReasonShutdown); err != nil {
			r.logger.Warn("關閉房間失敗", "room_code", actor.code, "error", err)
		}
	}

	if r.ownWheel != nil {
		r.ownWheel.Stop()
	}

	r.logger.Info("房間註冊表已停止", "closed_rooms", len(actors))
}

// bindPlayer 記錄玩家所在房間（由 actor 呼叫）
func (r *Registry) bindPlayer(playerID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playerRoom[playerID] = code
}

// unbindPlayer 只在記錄仍指向 code 時清除
func (r *Registry) unbindPlayer(playerID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playerRoom[playerID] == code {
		delete(r.playerRoom, playerID)
	}
}

// forget 移除房間；只移除同一個 actor，冪等
func (r *Registry) forget(code string, actor *RoomActor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[code]
	if !ok || current != actor {
		return
	}
	delete(r.rooms, code)
	for playerID, c := range r.playerRoom {
		if c == code {
			delete(r.playerRoom, playerID)
		}
	}
	r.logger.Debug("房間已移除", "room_code", code)
}
