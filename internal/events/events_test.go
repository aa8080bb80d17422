package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMulti_FansOut 每個下游都收到事件，錯誤合併返回
func TestMulti_FansOut(t *testing.T) {
	var got []events.Type
	record := events.Func(func(_ context.Context, ev events.Event) error {
		got = append(got, ev.Type)
		return nil
	})
	boom := errors.New("boom")
	failing := events.Func(func(context.Context, events.Event) error { return boom })

	m := events.Multi{record, failing, events.Nop{}, record}
	err := m.Publish(context.Background(), events.Event{Type: events.RoomCreated, RoomCode: "ABC234"})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []events.Type{events.RoomCreated, events.RoomCreated}, got)

	assert.NoError(t, events.Multi{}.Publish(context.Background(), events.Event{}))
}

// TestGameResult_Duration 測試對局時長
func TestGameResult_Duration(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 90*time.Second, events.GameResult{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}.Duration())
	assert.Zero(t, events.GameResult{FinishedAt: start}.Duration())
	assert.Zero(t, events.GameResult{StartedAt: start, FinishedAt: start.Add(-time.Second)}.Duration())
}

// TestNewNATSPublisher_Unreachable 連不上時返回錯誤
func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := events.NewNATSPublisher(events.NATSConfig{URL: "nats://127.0.0.1:1"}, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "連接 NATS 失敗")
}
