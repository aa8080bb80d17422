package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milenrab97/battleships/internal/events"
	"github.com/redis/go-redis/v9"
)

// RedisStore Redis 結果存儲
//
// 資料結構：
//
//	<prefix>:results  LIST  最近結果（JSON），LPUSH + LTRIM 保持上限
//	<prefix>:totals   HASH  games / shots / reason:<reason> 計數
//
// 寫入用 TxPipeline：一次往返，列表與計數不會只更新一半。
type RedisStore struct {
	client    *redis.Client
	prefix    string
	maxRecent int
}

// NewRedisStore 創建 Redis 存儲
func NewRedisStore(client *redis.Client, prefix string, maxRecent int) *RedisStore {
	if prefix == "" {
		prefix = "battleships"
	}
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &RedisStore{client: client, prefix: prefix, maxRecent: maxRecent}
}

func (s *RedisStore) resultsKey() string { return s.prefix + ":results" }
func (s *RedisStore) totalsKey() string  { return s.prefix + ":totals" }

// Record 實現 ResultStore
func (s *RedisStore) Record(ctx context.Context, result events.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化結果失敗: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.resultsKey(), data)
	pipe.LTrim(ctx, s.resultsKey(), 0, int64(s.maxRecent-1))
	pipe.HIncrBy(ctx, s.totalsKey(), "games", 1)
	pipe.HIncrBy(ctx, s.totalsKey(), "shots", int64(result.Shots))
	pipe.HIncrBy(ctx, s.totalsKey(), "reason:"+result.Reason, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("寫入結果失敗: %w", err)
	}
	return nil
}

// Recent 實現 ResultStore
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]events.GameResult, error) {
	if limit <= 0 || limit > s.maxRecent {
		limit = s.maxRecent
	}

	raw, err := s.client.LRange(ctx, s.resultsKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("讀取結果失敗: %w", err)
	}

	results := make([]events.GameResult, 0, len(raw))
	for _, item := range raw {
		var r events.GameResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("解析結果失敗: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Totals 實現 ResultStore
func (s *RedisStore) Totals(ctx context.Context) (Totals, error) {
	fields, err := s.client.HGetAll(ctx, s.totalsKey()).Result()
	if err != nil {
		return Totals{}, fmt.Errorf("讀取統計失敗: %w", err)
	}

	totals := Totals{ByReason: make(map[string]int64)}
	for field, value := range fields {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Totals{}, fmt.Errorf("統計欄位 %s 格式錯誤: %w", field, err)
		}
		switch {
		case field == "games":
			totals.Games = n
		case field == "shots":
			totals.Shots = n
		case strings.HasPrefix(field, "reason:"):
			totals.ByReason[strings.TrimPrefix(field, "reason:")] = n
		}
	}
	return totals, nil
}

// Ping 檢查連接（健康檢查用）
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
