package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig NATS 發布配置
type NATSConfig struct {
	URL           string
	SubjectPrefix string // 事件發布到 <prefix>.<room_code>
	Name          string // 連接名稱（監控用）
}

// NATSPublisher 把領域事件發布到 NATS
//
// 使用核心 NATS（fire-and-forget），不使用 JetStream：
// 事件只給線上訂閱者做統計與審計，不需要重播。
// nats.Conn.Publish 寫入本地緩衝即返回，不會阻塞房間 actor。
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher 連接 NATS
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "battleships.rooms"
	}

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連接中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重連", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	logger.Info("NATS 事件發布已啟用", "url", cfg.URL, "prefix", cfg.SubjectPrefix)

	return &NATSPublisher{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

// Subject 事件的 subject：<prefix>.<room_code>
func (p *NATSPublisher) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s", p.prefix, ev.RoomCode)
}

// Publish 實現 Publisher
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("發布事件失敗: %w", err)
	}
	return nil
}

// Close 送出緩衝中的事件後關閉連接
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
