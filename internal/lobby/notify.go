package lobby

import (
	"github.com/milenrab97/battleships/internal/game"
)

// EventType 推送給玩家的通知類型
type EventType string

const (
	EventPlayerJoined         EventType = "playerJoined"
	EventPlayerLeft           EventType = "playerLeft"
	EventPlayerReadyChanged   EventType = "playerReadyChanged"
	EventPhaseChanged         EventType = "phaseChanged"
	EventOpponentPlacedShips  EventType = "opponentPlacedShips"
	EventShotFired            EventType = "shotFired"
	EventGameOver             EventType = "gameOver"
	EventOpponentDisconnected EventType = "opponentDisconnected"
	EventOpponentReconnected  EventType = "opponentReconnected"
	EventRoomClosed           EventType = "roomClosed"
	EventPlayAgainRequested   EventType = "playAgainRequested"
	EventGameRestarted        EventType = "gameRestarted"
)

// Event 推送給單一玩家的通知
type Event struct {
	Type EventType `json:"event"`
	Data any       `json:"data"`
}

// Notifier 把通知送到玩家的連接
//
// 由 session 層實作；玩家沒有連接時直接丟棄。
// 房間 actor 在自己的 goroutine 內呼叫，實作不能阻塞。
type Notifier interface {
	Notify(playerID string, ev Event)
}

// NotifierFunc 函數形式的 Notifier
type NotifierFunc func(playerID string, ev Event)

// Notify 實現 Notifier
func (f NotifierFunc) Notify(playerID string, ev Event) { f(playerID, ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(string, Event) {}

// 通知內容

// PlayerJoinedData playerJoined
type PlayerJoinedData struct {
	Player  game.PlayerInfo   `json:"player"`
	Players []game.PlayerInfo `json:"players"`
}

// PlayerLeftData playerLeft
type PlayerLeftData struct {
	PlayerID string            `json:"player_id"`
	Players  []game.PlayerInfo `json:"players"`
}

// ReadyChangedData playerReadyChanged
type ReadyChangedData struct {
	PlayerID string `json:"player_id"`
	Ready    bool   `json:"ready"`
}

// PhaseChangedData phaseChanged；進入 BATTLE 時帶先手
type PhaseChangedData struct {
	Phase       game.Phase `json:"phase"`
	CurrentTurn string     `json:"current_turn,omitempty"`
}

// PlacedShipsData opponentPlacedShips（只告知已佈署，不含內容）
type PlacedShipsData struct {
	PlayerID string `json:"player_id"`
}

// ShotFiredData shotFired（發給非射手）
type ShotFiredData struct {
	ShooterID string          `json:"shooter_id"`
	Shot      game.ShotResult `json:"shot"`
	NextTurn  string          `json:"next_turn"`
	GameOver  bool            `json:"game_over"`
}

// GameOverData gameOver；每位玩家收到對手的完整艦隊
type GameOverData struct {
	WinnerID      string               `json:"winner_id"`
	WinnerName    string               `json:"winner_name"`
	Reason        game.WinReason       `json:"reason"`
	OpponentFleet []game.ShipPlacement `json:"opponent_fleet"`
}

// DisconnectedData opponentDisconnected
type DisconnectedData struct {
	PlayerID  string `json:"player_id"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// ReconnectedData opponentReconnected
type ReconnectedData struct {
	PlayerID string `json:"player_id"`
}

// RoomClosedData roomClosed
type RoomClosedData struct {
	Reason string `json:"reason"`
}

// RematchData playAgainRequested
type RematchData struct {
	PlayerID string `json:"player_id"`
	Votes    int    `json:"votes"`
}

// RestartedData gameRestarted
type RestartedData struct {
	Phase   game.Phase        `json:"phase"`
	Players []game.PlayerInfo `json:"players"`
}
