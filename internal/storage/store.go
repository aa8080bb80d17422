// Package storage 保存對局結果
//
// 系統設計問題：
//   房間狀態只存在記憶體，但「誰贏了、怎麼贏的」要能在房間銷毀後查詢。
//
// 設計方案：
//   ✅ ResultStore 介面 - 記憶體實作（單機 / 測試）與 Redis 實作（多實例共享）
//   ✅ 只存結算摘要 - 不存棋盤，不做遊戲狀態持久化
//   ✅ Recorder 非同步寫入 - 房間 actor 不等待 I/O
package storage

import (
	"context"
	"sync"

	"github.com/milenrab97/battleships/internal/events"
)

// DefaultMaxRecent 保留的最近結果數
const DefaultMaxRecent = 100

// Totals 累計統計
type Totals struct {
	Games    int64            `json:"games"`
	Shots    int64            `json:"shots"`
	ByReason map[string]int64 `json:"by_reason"`
}

// ResultStore 對局結果存儲
type ResultStore interface {
	// Record 保存一筆結果
	Record(ctx context.Context, result events.GameResult) error
	// Recent 最近的結果，新的在前
	Recent(ctx context.Context, limit int) ([]events.GameResult, error)
	// Totals 累計統計
	Totals(ctx context.Context) (Totals, error)
}

// MemoryStore 記憶體結果存儲
type MemoryStore struct {
	mu        sync.RWMutex
	recent    []events.GameResult // 新的在前
	maxRecent int
	totals    Totals
}

// NewMemoryStore 創建記憶體存儲
func NewMemoryStore(maxRecent int) *MemoryStore {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &MemoryStore{
		maxRecent: maxRecent,
		totals:    Totals{ByReason: make(map[string]int64)},
	}
}

// Record 實現 ResultStore
func (s *MemoryStore) Record(_ context.Context, result events.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append([]events.GameResult{result}, s.recent...)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[:s.maxRecent]
	}

	s.totals.Games++
	s.totals.Shots += int64(result.Shots)
	s.totals.ByReason[result.Reason]++
	return nil
}

// Recent 實現 ResultStore
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]events.GameResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]events.GameResult, limit)
	copy(out, s.recent[:limit])
	return out, nil
}

// Totals 實現 ResultStore
func (s *MemoryStore) Totals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Totals{
		Games:    s.totals.Games,
		Shots:    s.totals.Shots,
		ByReason: make(map[string]int64, len(s.totals.ByReason)),
	}
	for k, v := range s.totals.ByReason {
		out.ByReason[k] = v
	}
	return out, nil
}
