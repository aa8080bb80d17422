// Package config 載入服務配置
//
// 來源優先順序：預設值 < YAML 檔案 < 環境變數。
// 配置檔案不存在時直接使用預設值，方便本地啟動。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服務配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"` // 空表示允許所有來源
	} `yaml:"server"`

	Game struct {
		GracePeriod     time.Duration `yaml:"grace_period"`     // 斷線寬限期
		IdleTimeout     time.Duration `yaml:"idle_timeout"`     // 閒置房間回收
		CleanupInterval time.Duration `yaml:"cleanup_interval"` // 回收掃描間隔
		WheelTick       time.Duration `yaml:"wheel_tick"`       // 時間輪精度
		WheelSlots      int           `yaml:"wheel_slots"`
	} `yaml:"game"`

	WebSocket struct {
		PingPeriod     time.Duration `yaml:"ping_period"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBuffer     int           `yaml:"send_buffer"`
	} `yaml:"websocket"`

	Redis struct {
		Addr         string        `yaml:"addr"` // 空表示使用記憶體結果存儲
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		MaxRetries   int           `yaml:"max_retries"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		KeyPrefix    string        `yaml:"key_prefix"`
		MaxResults   int           `yaml:"max_results"`
	} `yaml:"redis"`

	NATS struct {
		URL           string `yaml:"url"` // 空表示不發布領域事件
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"` // text 或 json
		Output    string `yaml:"output"` // stdout、stderr 或檔案路徑
		AddSource bool   `yaml:"add_source"`
	} `yaml:"log"`
}

// Default 預設配置
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3001
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Game.GracePeriod = 30 * time.Second
	cfg.Game.IdleTimeout = 30 * time.Minute
	cfg.Game.CleanupInterval = time.Minute
	cfg.Game.WheelTick = 100 * time.Millisecond
	cfg.Game.WheelSlots = 600

	cfg.WebSocket.PingPeriod = 54 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.MaxMessageSize = 4096
	cfg.WebSocket.SendBuffer = 64

	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 2
	cfg.Redis.MaxRetries = 3
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second
	cfg.Redis.KeyPrefix = "battleships"
	cfg.Redis.MaxResults = 100

	cfg.NATS.SubjectPrefix = "battleships.rooms"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	return cfg
}

// Load 載入配置：預設值、YAML 檔案、環境變數依序覆蓋
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// 沒有配置檔案，使用預設值
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup("NATS_URL"); ok && v != "" {
		c.NATS.URL = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	durations := map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"game.grace_period":       c.Game.GracePeriod,
		"game.idle_timeout":       c.Game.IdleTimeout,
		"game.cleanup_interval":   c.Game.CleanupInterval,
		"game.wheel_tick":         c.Game.WheelTick,
		"websocket.ping_period":   c.WebSocket.PingPeriod,
		"websocket.pong_wait":     c.WebSocket.PongWait,
		"websocket.write_wait":    c.WebSocket.WriteWait,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.Game.WheelSlots <= 0 {
		errs = append(errs, fmt.Errorf("game.wheel_slots must be positive, got %d", c.Game.WheelSlots))
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, fmt.Errorf("websocket.ping_period (%s) must be shorter than pong_wait (%s)",
			c.WebSocket.PingPeriod, c.WebSocket.PongWait))
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("websocket.max_message_size must be positive"))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("websocket.send_buffer must be positive"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Addr HTTP 監聽地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
