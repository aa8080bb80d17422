package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/milenrab97/battleships/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLevel 測試日誌級別解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.ParseLevel(tt.in))
		})
	}
}

// TestContextHandler 測試上下文屬性注入
func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(&buf, logger.Options{Level: "debug", Format: "json"}))

	ctx := logger.WithRoomCode(context.Background(), "ABC234")
	ctx = logger.WithPlayerID(ctx, "p1")
	log.With("component", "test").InfoContext(ctx, "開火")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ABC234", entry["room_code"])
	assert.Equal(t, "p1", entry["player_id"])
	assert.Equal(t, "test", entry["component"])
	assert.NotContains(t, entry, "conn_id")
}

// TestNew_FileOutput 測試輸出到檔案
func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	log, closer, err := logger.New(logger.Options{Level: "info", Output: path})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	log.Info("hello")
}
