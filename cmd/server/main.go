package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/milenrab97/battleships/internal/config"
	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/internal/handler"
	"github.com/milenrab97/battleships/internal/lobby"
	"github.com/milenrab97/battleships/internal/session"
	"github.com/milenrab97/battleships/internal/storage"
	"github.com/milenrab97/battleships/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置檔案路徑（不存在時使用預設值）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 載入配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 設定日誌
	log, logCloser, err := logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    cfg.Log.Output,
		AddSource: cfg.Log.AddSource,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(log)

	// 結果存儲：有 Redis 用 Redis，否則用記憶體
	results, redisClient, err := openResultStore(cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	recorder := storage.NewRecorder(results, log.With("component", "recorder"), 256)

	publishers := events.Multi{recorder}
	var natsPub *events.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPub, err = events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          "battleships-server",
		}, log.With("component", "nats"))
		if err != nil {
			recorder.Close()
			return err
		}
		publishers = append(publishers, natsPub)
	}

	// 斷線寬限期計時器
	wheel := lobby.NewTimingWheel(cfg.Game.WheelTick, cfg.Game.WheelSlots)
	wheel.Start()

	registry := lobby.NewRegistry(lobby.Config{
		GracePeriod:     cfg.Game.GracePeriod,
		IdleTimeout:     cfg.Game.IdleTimeout,
		CleanupInterval: cfg.Game.CleanupInterval,
	}, log.With("component", "registry"),
		lobby.WithScheduler(wheel),
		lobby.WithPublisher(publishers),
	)

	hub := session.NewHub(registry, session.Config{
		PingPeriod:     cfg.WebSocket.PingPeriod,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.With("component", "session"))
	registry.SetNotifier(hub)

	h := handler.NewHandler(registry, hub, results, log.With("component", "http"))

	// 設定 HTTP 伺服器
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("battleships 伺服器啟動",
			"addr", srv.Addr,
			"grace_period", cfg.Game.GracePeriod,
			"redis", cfg.Redis.Addr != "",
			"nats", cfg.NATS.URL != "")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("listen: %w", err)
		}
	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新請求
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP 伺服器關閉失敗", "error", err)
		_ = srv.Close()
	}

	// 關閉所有房間（通知玩家 roomClosed），再關閉連接
	registry.Stop(ctx)
	hub.Stop()
	wheel.Stop()

	// 送完剩餘的事件與結果
	recorder.Close()
	if natsPub != nil {
		if err := natsPub.Close(); err != nil {
			log.Warn("NATS 關閉失敗", "error", err)
		}
	}

	log.Info("伺服器已關閉")
	return runErr
}

// openResultStore 依配置選擇結果存儲
func openResultStore(cfg *config.Config, log *slog.Logger) (storage.ResultStore, *redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Info("未配置 Redis，使用記憶體結果存儲")
		return storage.NewMemoryStore(cfg.Redis.MaxResults), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	log.Info("結果存儲使用 Redis", "addr", cfg.Redis.Addr)
	return storage.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.MaxResults), client, nil
}
