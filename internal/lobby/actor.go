package lobby

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/internal/game"
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// 系統設計問題：
//   多個連接同時操作同一個房間（兩人同時開火、斷線計時器同時到期），
//   如何保證不會看到不一致的中間狀態？
//
// 核心挑戰：
//   1. 序列化：同一房間的所有操作必須一個接一個執行
//   2. 隔離：不同房間完全獨立，可以並行
//   3. 計時器：寬限期到期要跟重連競爭，且只能有一個結果
//   4. 順序：phaseChanged 必須先於新階段的任何通知送達
//
// 設計方案：
//   ✅ 每房間一個 goroutine（actor），命令經 channel 進入
//   ✅ game.Room 不加鎖，只有 actor goroutine 會碰它
//   ✅ 計時器只「投遞」到期命令，由 actor 以世代判斷是否過期
//   ✅ 通知在 actor 內依序送出，天然保持因果順序

// 關閉原因
const (
	CloseReasonEmpty    = "empty"
	CloseReasonIdle     = "idle_timeout"
	CloseReasonShutdown = "server_shutdown"
)

// 預定義錯誤
var (
	ErrRoomNotFound   = apperrors.New(apperrors.ErrCodeNotFound, "room not found")
	ErrRoomClosed     = apperrors.New(apperrors.ErrCodeRoomClosed, "room is closed")
	ErrGameInProgress = apperrors.New(apperrors.ErrCodeGameInProgress, "game already in progress")
)

// FireResult 開火的回覆內容
type FireResult struct {
	Shot     game.ShotResult `json:"shot"`
	NextTurn string          `json:"next_turn,omitempty"`
	GameOver bool            `json:"game_over"`
}

// Summary 房間摘要（不含棋盤）
type Summary struct {
	Code       string            `json:"room_code"`
	Phase      game.Phase        `json:"phase"`
	Players    []game.PlayerInfo `json:"players"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
}

// RoomActor 單一房間的 actor
type RoomActor struct {
	code string
	room *game.Room // 只在 run goroutine 內存取

	cmds    chan func()
	done    chan struct{}
	stopped bool

	registry  *Registry
	notifier  Notifier
	publisher events.Publisher
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time

	timers  map[string]Timer // playerID → 寬限期計時器
	version int

	createdAt  time.Time
	lastActive atomic.Int64
	phase      atomic.Value // game.Phase
	players    atomic.Int32
}

func newRoomActor(reg *Registry, code, hostID, hostName string) *RoomActor {
	a := &RoomActor{
		code:      code,
		cmds:      make(chan func(), 32),
		done:      make(chan struct{}),
		registry:  reg,
		notifier:  reg.notifier,
		publisher: reg.publisher,
		scheduler: reg.scheduler,
		logger:    reg.logger.With("room_code", code),
		now:       reg.now,
		timers:    make(map[string]Timer),
		createdAt: reg.now(),
	}
	opts := []game.Option{
		game.WithGracePeriod(reg.cfg.GracePeriod),
		game.WithClock(reg.now),
	}
	if reg.pick != nil {
		opts = append(opts, game.WithFirstTurnPicker(reg.pick))
	}
	a.room = game.NewRoom(code, hostID, hostName, opts...)
	a.syncState()
	a.lastActive.Store(a.createdAt.UnixNano())
	return a
}

// start 發布創建事件並啟動 actor goroutine
func (a *RoomActor) start() {
	a.publish(events.Event{Type: events.RoomCreated, Phase: string(game.PhaseLobby)})
	go a.run()
}

func (a *RoomActor) run() {
	defer close(a.done)

	for {
		cmd := <-a.cmds
		cmd()
		a.syncState()
		if a.stopped {
			return
		}
	}
}

// syncState 把讀多的狀態複製到原子變數，Registry 統計不必進入 actor
func (a *RoomActor) syncState() {
	a.phase.Store(a.room.Phase())
	a.players.Store(int32(a.room.PlayerCount()))
}

// do 在 actor 內執行玩家操作並等待結果，同時更新最後活動時間
func (a *RoomActor) do(ctx context.Context, fn func() error) error {
	return a.exec(ctx, true, fn)
}

// query 唯讀查詢，不更新最後活動時間
func (a *RoomActor) query(ctx context.Context, fn func() error) error {
	return a.exec(ctx, false, fn)
}

// exec 命令入隊後一定等到結果。
// 執行前 ctx 已取消則不修改房間，直接返回 ctx.Err()。
func (a *RoomActor) exec(ctx context.Context, touch bool, fn func() error) error {
	errCh := make(chan error, 1)
	cmd := func() {
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		err := fn()
		a.syncState()
		if touch {
			a.lastActive.Store(a.now().UnixNano())
		}
		errCh <- err
	}

	select {
	case a.cmds <- cmd:
	case <-a.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-a.done:
		// 關閉前最後一個命令可能已經寫入結果
		select {
		case err := <-errCh:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

// post 投遞命令，不等待結果（計時器回調使用）
func (a *RoomActor) post(fn func()) {
	select {
	case a.cmds <- fn:
	case <-a.done:
	}
}

// Code 房間碼
func (a *RoomActor) Code() string { return a.code }

// Phase 最近一次命令後的階段
func (a *RoomActor) Phase() game.Phase { return a.phase.Load().(game.Phase) }

// PlayerCount 最近一次命令後的玩家數
func (a *RoomActor) PlayerCount() int { return int(a.players.Load()) }

// LastActive 最近一次玩家操作的時間
func (a *RoomActor) LastActive() time.Time { return time.Unix(0, a.lastActive.Load()) }

// Done actor 結束時關閉
func (a *RoomActor) Done() <-chan struct{} { return a.done }

// Join 加入房間（只能在 LOBBY）
func (a *RoomActor) Join(ctx context.Context, playerID, name string) (game.Snapshot, error) {
	var snap game.Snapshot
	err := a.do(ctx, func() error {
		if a.room.Phase() != game.PhaseLobby {
			return ErrGameInProgress
		}
		if err := a.room.AddPlayer(playerID, name); err != nil {
			return err
		}
		a.registry.bindPlayer(playerID, a.code)

		players := a.room.Players()
		a.notifyOthers(playerID, Event{
			Type: EventPlayerJoined,
			Data: PlayerJoinedData{Player: findInfo(players, playerID), Players: players},
		})
		snap = a.room.Snapshot(playerID)

		a.logger.Info("玩家加入房間", "player_id", playerID, "player_name", name)
		return nil
	})
	return snap, err
}

// SetReady 設定準備狀態
func (a *RoomActor) SetReady(ctx context.Context, playerID string, ready bool) error {
	return a.do(ctx, func() error {
		if !a.room.HasPlayer(playerID) {
			return game.ErrPlayerNotFound
		}
		if a.room.Phase() != game.PhaseLobby {
			return game.ErrWrongPhase
		}

		started, err := a.room.SetReady(playerID, ready)
		if err != nil {
			return err
		}
		a.notifyAll(Event{
			Type: EventPlayerReadyChanged,
			Data: ReadyChangedData{PlayerID: playerID, Ready: ready},
		})
		if started {
			a.phaseChanged()
		}
		return nil
	})
}

// SubmitPlacement 提交艦隊
func (a *RoomActor) SubmitPlacement(ctx context.Context, playerID string, fleet []game.ShipPlacement) error {
	return a.do(ctx, func() error {
		battle, err := a.room.SubmitPlacement(playerID, fleet)
		if err != nil {
			return err
		}
		a.notifyOthers(playerID, Event{
			Type: EventOpponentPlacedShips,
			Data: PlacedShipsData{PlayerID: playerID},
		})
		if battle {
			a.phaseChanged()
		}
		return nil
	})
}

// FireShot 開火
//
// 射擊、換手、勝負判定在同一個命令內完成。
func (a *RoomActor) FireShot(ctx context.Context, playerID string, c game.Coordinate) (FireResult, error) {
	var res FireResult
	err := a.do(ctx, func() error {
		shot, over, err := a.room.FireShot(playerID, c)
		if err != nil {
			return err
		}

		res = FireResult{Shot: shot, GameOver: over}
		if !over {
			res.NextTurn = a.room.CurrentTurn()
		}
		a.notifyOthers(playerID, Event{
			Type: EventShotFired,
			Data: ShotFiredData{ShooterID: playerID, Shot: shot, NextTurn: res.NextTurn, GameOver: over},
		})
		if over {
			a.finished(a.room.LastResult())
		}
		return nil
	})
	return res, err
}

// RequestRematch 投票再戰
func (a *RoomActor) RequestRematch(ctx context.Context, playerID string) error {
	return a.do(ctx, func() error {
		restarted, err := a.room.RequestRematch(playerID)
		if err != nil {
			return err
		}

		votes := a.room.RematchVotes()
		if restarted {
			votes = game.MaxPlayers
		}
		a.notifyOthers(playerID, Event{
			Type: EventPlayAgainRequested,
			Data: RematchData{PlayerID: playerID, Votes: votes},
		})

		if restarted {
			a.notifyAll(Event{
				Type: EventGameRestarted,
				Data: RestartedData{Phase: a.room.Phase(), Players: a.room.Players()},
			})
			a.publish(events.Event{Type: events.PhaseChanged, Phase: string(a.room.Phase())})
			a.logger.Info("雙方同意再戰，回到大廳")
		}
		return nil
	})
}

// Leave 主動離開；遊戲進行中視為棄權
func (a *RoomActor) Leave(ctx context.Context, playerID string) error {
	return a.do(ctx, func() error {
		over, err := a.room.RemovePlayer(playerID)
		if err != nil {
			return err
		}
		a.cancelTimer(playerID)
		a.registry.unbindPlayer(playerID, a.code)

		if over != nil {
			a.finished(over)
		}
		a.notifyAll(Event{
			Type: EventPlayerLeft,
			Data: PlayerLeftData{PlayerID: playerID, Players: a.room.Players()},
		})

		a.logger.Info("玩家離開房間", "player_id", playerID, "forfeit", over != nil)
		a.closeIfEmpty()
		return nil
	})
}

// Disconnect 連接中斷
//
// LOBBY 直接移除；其他階段啟動寬限期計時器。
func (a *RoomActor) Disconnect(ctx context.Context, playerID string) error {
	return a.do(ctx, func() error {
		d, err := a.room.HandleDisconnect(playerID)
		if err != nil {
			return err
		}

		if d.Removed {
			a.registry.unbindPlayer(playerID, a.code)
			a.notifyAll(Event{
				Type: EventPlayerLeft,
				Data: PlayerLeftData{PlayerID: playerID, Players: a.room.Players()},
			})
			a.closeIfEmpty()
			return nil
		}

		a.armTimer(playerID, d.Generation)
		a.notifyOthers(playerID, Event{
			Type: EventOpponentDisconnected,
			Data: DisconnectedData{PlayerID: playerID, TimeoutMs: a.room.GracePeriod().Milliseconds()},
		})

		a.logger.Info("玩家斷線，寬限期開始",
			"player_id", playerID,
			"deadline", d.Deadline,
			"generation", d.Generation)
		return nil
	})
}

// Reconnect 重連，返回重連者視角的完整快照
func (a *RoomActor) Reconnect(ctx context.Context, playerID string) (game.Snapshot, error) {
	var snap game.Snapshot
	err := a.do(ctx, func() error {
		if err := a.room.HandleReconnect(playerID); err != nil {
			return err
		}
		a.cancelTimer(playerID)
		a.registry.bindPlayer(playerID, a.code)

		a.notifyOthers(playerID, Event{
			Type: EventOpponentReconnected,
			Data: ReconnectedData{PlayerID: playerID},
		})
		snap = a.room.Snapshot(playerID)

		a.logger.Info("玩家已重連", "player_id", playerID)
		return nil
	})
	return snap, err
}

// Snapshot viewer 視角的快照
func (a *RoomActor) Snapshot(ctx context.Context, viewerID string) (game.Snapshot, error) {
	var snap game.Snapshot
	err := a.query(ctx, func() error {
		snap = a.room.Snapshot(viewerID)
		return nil
	})
	return snap, err
}

// Summary 房間摘要
func (a *RoomActor) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := a.query(ctx, func() error {
		s = Summary{
			Code:       a.code,
			Phase:      a.room.Phase(),
			Players:    a.room.Players(),
			CreatedAt:  a.createdAt,
			LastActive: a.LastActive(),
		}
		return nil
	})
	return s, err
}

// Close 關閉房間：通知所有玩家、取消計時器、從 Registry 移除
func (a *RoomActor) Close(ctx context.Context, reason string) error {
	return a.do(ctx, func() error {
		a.notifyAll(Event{Type: EventRoomClosed, Data: RoomClosedData{Reason: reason}})
		a.shutdown(reason)
		return nil
	})
}

// armTimer 啟動寬限期；計時器只投遞命令，不直接碰房間狀態
func (a *RoomActor) armTimer(playerID string, generation uint64) {
	a.cancelTimer(playerID)
	a.timers[playerID] = a.scheduler.AfterFunc(a.room.GracePeriod(), func() {
		a.post(func() { a.expire(playerID, generation) })
	})
}

func (a *RoomActor) cancelTimer(playerID string) {
	if t, ok := a.timers[playerID]; ok {
		t.Stop()
		delete(a.timers, playerID)
	}
}

// expire 寬限期到期；世代不符表示期間已重連
func (a *RoomActor) expire(playerID string, generation uint64) {
	exp, applied := a.room.ExpireDisconnect(playerID, generation)
	if !applied {
		a.logger.Debug("忽略過期的寬限期計時器", "player_id", playerID, "generation", generation)
		return
	}
	delete(a.timers, playerID)
	a.registry.unbindPlayer(playerID, a.code)

	if exp.GameOver != nil {
		a.finished(exp.GameOver)
	}
	a.notifyAll(Event{
		Type: EventPlayerLeft,
		Data: PlayerLeftData{PlayerID: playerID, Players: a.room.Players()},
	})

	a.logger.Info("寬限期到期，玩家已移除", "player_id", playerID, "forfeit", exp.GameOver != nil)
	a.closeIfEmpty()
}

func (a *RoomActor) phaseChanged() {
	data := PhaseChangedData{Phase: a.room.Phase()}
	if data.Phase == game.PhaseBattle {
		data.CurrentTurn = a.room.CurrentTurn()
	}
	a.notifyAll(Event{Type: EventPhaseChanged, Data: data})
	a.publish(events.Event{Type: events.PhaseChanged, Phase: string(data.Phase)})

	a.logger.Info("房間階段變更", "phase", data.Phase, "current_turn", data.CurrentTurn)
}

// finished 結算：每位仍在房間的玩家收到對手艦隊，並發布結果事件
func (a *RoomActor) finished(over *game.GameOver) {
	for _, id := range a.room.PlayerIDs() {
		a.notifier.Notify(id, Event{
			Type: EventGameOver,
			Data: GameOverData{
				WinnerID:      over.WinnerID,
				WinnerName:    over.WinnerName,
				Reason:        over.Reason,
				OpponentFleet: over.OpponentFleet(id),
			},
		})
	}

	a.publish(events.Event{
		Type:   events.GameFinished,
		Phase:  string(game.PhaseFinished),
		Reason: string(over.Reason),
		Result: &events.GameResult{
			RoomCode:   a.code,
			WinnerID:   over.WinnerID,
			WinnerName: over.WinnerName,
			LoserID:    over.LoserID,
			LoserName:  over.LoserName,
			Reason:     string(over.Reason),
			Shots:      over.Shots,
			StartedAt:  over.StartedAt,
			FinishedAt: over.FinishedAt,
		},
	})

	a.logger.Info("對局結束",
		"winner_id", over.WinnerID,
		"loser_id", over.LoserID,
		"reason", over.Reason,
		"shots", over.Shots)
}

func (a *RoomActor) closeIfEmpty() {
	if a.room.PlayerCount() == 0 {
		a.shutdown(CloseReasonEmpty)
	}
}

// shutdown 取消所有計時器並從 Registry 移除，run 迴圈在本命令後結束
func (a *RoomActor) shutdown(reason string) {
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
	for _, id := range a.room.PlayerIDs() {
		a.registry.unbindPlayer(id, a.code)
	}
	a.registry.forget(a.code, a)
	a.publish(events.Event{Type: events.RoomClosed, Phase: string(a.room.Phase()), Reason: reason})

	a.stopped = true
	a.logger.Info("房間已關閉", "reason", reason)
}

func (a *RoomActor) notifyAll(ev Event) {
	for _, id := range a.room.PlayerIDs() {
		a.notifier.Notify(id, ev)
	}
}

func (a *RoomActor) notifyOthers(except string, ev Event) {
	for _, id := range a.room.PlayerIDs() {
		if id != except {
			a.notifier.Notify(id, ev)
		}
	}
}

// publish 補上事件 ID、版本與時間後發布；失敗只記錄，不影響房間
func (a *RoomActor) publish(ev events.Event) {
	a.version++
	ev.ID = uuid.NewString()
	ev.RoomCode = a.code
	ev.Version = a.version
	ev.Timestamp = a.now()

	if err := a.publisher.Publish(context.Background(), ev); err != nil {
		a.logger.Warn("發布房間事件失敗", "type", ev.Type, "error", err)
	}
}

func findInfo(players []game.PlayerInfo, id string) game.PlayerInfo {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return game.PlayerInfo{ID: id}
}
