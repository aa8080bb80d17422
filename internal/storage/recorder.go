package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/milenrab97/battleships/internal/events"
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// 預定義錯誤
var (
	ErrRecorderClosed = apperrors.New(apperrors.ErrCodeUnavailable, "result recorder closed")
	ErrQueueFull      = apperrors.New(apperrors.ErrCodeUnavailable, "result queue full")
)

// Recorder 把 game_finished 事件非同步寫入 ResultStore
//
// 實現 events.Publisher：房間 actor 發布事件時只做一次非阻塞的 channel 寫入，
// 真正的存儲 I/O 在背景 worker 完成。佇列滿時丟棄並返回 ErrQueueFull。
type Recorder struct {
	store   ResultStore
	logger  *slog.Logger
	timeout time.Duration

	queue  chan events.GameResult
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder 創建並啟動 Recorder
func NewRecorder(store ResultStore, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan events.GameResult, buffer),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Publish 實現 events.Publisher；只處理 game_finished
func (r *Recorder) Publish(_ context.Context, ev events.Event) error {
	if ev.Type != events.GameFinished || ev.Result == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- *ev.Result:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for result := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.Record(ctx, result); err != nil {
			r.logger.Error("保存對局結果失敗",
				"room_code", result.RoomCode,
				"winner_id", result.WinnerID,
				"error", err)
		} else {
			r.logger.Debug("對局結果已保存", "room_code", result.RoomCode, "reason", result.Reason)
		}
		cancel()
	}
}

// Close 停止接收並等待佇列寫完
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
