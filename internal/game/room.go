package game

import (
	"math/rand/v2"
	"time"

	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// 系統設計問題：
//   兩名玩家如何在同一個房間內，經歷「準備 → 佈署 → 交戰 → 結算」並處理斷線？
//
// 核心挑戰：
//   1. 狀態管理：階段只能前進，唯一例外是雙方同意再戰時 FINISHED → LOBBY
//   2. 回合規則：只有未命中才換手，命中與擊沉可以繼續射擊
//   3. 斷線處理：交戰中斷線有寬限期，逾時判負並揭露其艦隊
//   4. 原子性：射擊、換手、勝負判定必須一次完成，不能留下中間狀態
//
// 設計方案：
//   ✅ 有限狀態機（FSM）- 每個轉換都在觸發檢查內一次套用
//   ✅ 單一擁有者 - Room 不加鎖，由 lobby 的房間 actor 序列化所有操作
//   ✅ 世代計數 - 每次斷線 / 重連都遞增，過期的計時器無法作用於新狀態
//
// 狀態機：
//
//	LOBBY → PLACEMENT → BATTLE → FINISHED
//	  ↑_________________________________↓（雙方投票再戰）

// DefaultGracePeriod 斷線寬限期
const DefaultGracePeriod = 30 * time.Second

// MaxPlayers 每房間人數上限
const MaxPlayers = 2

// 預定義錯誤
var (
	ErrRoomFull       = apperrors.New(apperrors.ErrCodeRoomFull, "room is full")
	ErrPlayerExists   = apperrors.New(apperrors.ErrCodeInvalidInput, "player already in room")
	ErrPlayerNotFound = apperrors.New(apperrors.ErrCodeNotFound, "player not found")
	ErrWrongPhase     = apperrors.New(apperrors.ErrCodeWrongPhase, "operation not allowed in current phase")
	ErrAlreadyPlaced  = apperrors.New(apperrors.ErrCodeAlreadyPlaced, "ships already placed")
	ErrNotYourTurn    = apperrors.New(apperrors.ErrCodeNotYourTurn, "not your turn")
	ErrAlreadyShot    = apperrors.New(apperrors.ErrCodeAlreadyShot, "already shot there")
	ErrNoOpponent     = apperrors.New(apperrors.ErrCodeNotApplicable, "opponent board not available")
	ErrDisconnected   = apperrors.New(apperrors.ErrCodeNotApplicable, "player is disconnected")
)

// WinReason 勝負原因
type WinReason string

const (
	ReasonAllSunk        WinReason = "all_sunk"
	ReasonForfeitLeave   WinReason = "forfeit_leave"
	ReasonForfeitTimeout WinReason = "forfeit_timeout"
)

// Player 房間內的玩家槽位
//
// 連接參考不存在這裡：連接與玩家的綁定由 session 層的會話表管理。
type Player struct {
	ID                 string
	Name               string
	Ready              bool
	Board              *Board
	Connected          bool
	DisconnectDeadline time.Time
	JoinedAt           time.Time

	generation uint64 // 斷線 / 重連世代
}

// PlayerInfo 對外公開的玩家資訊
type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Placed    bool   `json:"placed"`
}

// GameOver 一局的結算
type GameOver struct {
	WinnerID   string                     `json:"winner_id"`
	WinnerName string                     `json:"winner_name"`
	LoserID    string                     `json:"loser_id"`
	LoserName  string                     `json:"loser_name"`
	Reason     WinReason                  `json:"reason"`
	Fleets     map[string][]ShipPlacement `json:"-"` // playerID → 該玩家自己的艦隊
	Shots      int                        `json:"shots"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// OpponentFleet 返回 playerID 對手的艦隊（結算揭露用）
func (g *GameOver) OpponentFleet(playerID string) []ShipPlacement {
	for id, fleet := range g.Fleets {
		if id != playerID {
			return fleet
		}
	}
	return []ShipPlacement{}
}

// Disconnect 斷線處理結果
type Disconnect struct {
	Removed    bool      // LOBBY 階段直接移除
	Empty      bool      // 房間已無玩家
	Deadline   time.Time // 寬限期截止時間
	Generation uint64    // 計時器必須帶回的世代
}

// Expiry 寬限期到期的處理結果
type Expiry struct {
	GameOver *GameOver // 觸發判負時非 nil
	Empty    bool
}

// Snapshot 房間狀態快照
//
// 只包含 viewer 有權看到的資訊：自己的完整棋盤與對手的公開棋盤。
type Snapshot struct {
	Code          string          `json:"room_code"`
	Phase         Phase           `json:"phase"`
	Players       []PlayerInfo    `json:"players"`
	CurrentTurn   string          `json:"current_turn,omitempty"`
	Winner        string          `json:"winner,omitempty"`
	OwnBoard      [][]CellState   `json:"own_board,omitempty"`
	OwnFleet      []ShipPlacement `json:"own_fleet,omitempty"`
	OpponentBoard [][]CellState   `json:"opponent_board,omitempty"`
	OpponentSunk  []ShipType      `json:"opponent_sunk,omitempty"`
}

// Option 房間選項
type Option func(*Room)

// WithGracePeriod 設定斷線寬限期
func WithGracePeriod(d time.Duration) Option {
	return func(r *Room) {
		if d > 0 {
			r.gracePeriod = d
		}
	}
}

// WithClock 注入時鐘（測試用）
func WithClock(now func() time.Time) Option {
	return func(r *Room) {
		r.now = now
	}
}

// WithFirstTurnPicker 注入先手選擇（返回 [0, n) 的索引）
func WithFirstTurnPicker(pick func(n int) int) Option {
	return func(r *Room) {
		r.pick = pick
	}
}

// Room 對戰房間
//
// 不是並發安全的：同一時間只能有一個 goroutine 操作（見 lobby.RoomActor）。
type Room struct {
	Code string

	phase        Phase
	players      map[string]*Player
	order        []string // 加入順序，第一位是房主
	currentTurn  string
	winner       string
	rematchVotes map[string]bool
	lastResult   *GameOver
	shots        int
	battleStart  time.Time

	gracePeriod time.Duration
	now         func() time.Time
	pick        func(n int) int
}

// NewRoom 創建房間，房主是唯一成員
func NewRoom(code, hostID, hostName string, opts ...Option) *Room {
	r := &Room{
		Code:         code,
		phase:        PhaseLobby,
		players:      make(map[string]*Player, MaxPlayers),
		rematchVotes: make(map[string]bool, MaxPlayers),
		gracePeriod:  DefaultGracePeriod,
		now:          time.Now,
		pick:         rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.insert(hostID, hostName)
	return r
}

func (r *Room) insert(id, name string) {
	r.players[id] = &Player{
		ID:        id,
		Name:      name,
		Connected: true,
		JoinedAt:  r.now(),
	}
	r.order = append(r.order, id)
}

// Phase 當前階段
func (r *Room) Phase() Phase { return r.phase }

// CurrentTurn 當前回合的玩家
func (r *Room) CurrentTurn() string { return r.currentTurn }

// Winner 勝者
func (r *Room) Winner() string { return r.winner }

// GracePeriod 斷線寬限期
func (r *Room) GracePeriod() time.Duration { return r.gracePeriod }

// LastResult 最近一局的結算
func (r *Room) LastResult() *GameOver { return r.lastResult }

// PlayerCount 玩家數
func (r *Room) PlayerCount() int { return len(r.players) }

// IsFull 是否已滿
func (r *Room) IsFull() bool { return len(r.players) >= MaxPlayers }

// HasPlayer 玩家是否在房間內
func (r *Room) HasPlayer(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Player 查詢玩家
func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// PlayerIDs 依加入順序返回玩家 ID
func (r *Room) PlayerIDs() []string {
	return append([]string(nil), r.order...)
}

// Opponent 返回對手 ID，沒有對手時返回空字串
func (r *Room) Opponent(id string) string {
	for _, other := range r.order {
		if other != id {
			return other
		}
	}
	return ""
}

// Players 依加入順序返回玩家資訊
func (r *Room) Players() []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		infos = append(infos, PlayerInfo{
			ID:        p.ID,
			Name:      p.Name,
			Ready:     p.Ready,
			Connected: p.Connected,
			Placed:    p.Board != nil,
		})
	}
	return infos
}

// RematchVotes 已投票再戰的人數
func (r *Room) RematchVotes() int { return len(r.rematchVotes) }

// AddPlayer 加入玩家
//
// 只檢查人數上限；「必須在 LOBBY 才能加入」由呼叫方檢查。
func (r *Room) AddPlayer(id, name string) error {
	if r.IsFull() {
		return ErrRoomFull
	}
	if r.HasPlayer(id) {
		return ErrPlayerExists
	}
	r.insert(id, name)
	return nil
}

// SetReady 設定準備狀態
//
// 每次呼叫後都檢查 LOBBY → PLACEMENT：兩人都準備好時進入佈署，
// 並清除準備旗標與舊棋盤。返回是否發生了階段轉換。
func (r *Room) SetReady(id string, ready bool) (bool, error) {
	p, ok := r.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	p.Ready = ready

	if r.phase != PhaseLobby || len(r.players) != MaxPlayers {
		return false, nil
	}
	for _, other := range r.players {
		if !other.Ready {
			return false, nil
		}
	}

	r.phase = PhasePlacement
	for _, other := range r.players {
		other.Ready = false
		other.Board = nil
	}
	return true, nil
}

// SubmitPlacement 提交艦隊佈署
//
// 每次成功後檢查 PLACEMENT → BATTLE：雙方都有棋盤時隨機決定先手。
// 返回是否進入了交戰。
func (r *Room) SubmitPlacement(id string, fleet []ShipPlacement) (bool, error) {
	p, ok := r.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if r.phase != PhasePlacement {
		return false, ErrWrongPhase
	}
	if p.Board != nil {
		return false, ErrAlreadyPlaced
	}
	if err := ValidateFleet(fleet); err != nil {
		return false, err
	}

	board := NewBoard()
	if err := board.PlaceShips(fleet); err != nil {
		return false, err
	}
	p.Board = board

	if len(r.players) != MaxPlayers {
		return false, nil
	}
	for _, other := range r.players {
		if other.Board == nil {
			return false, nil
		}
	}

	r.phase = PhaseBattle
	r.currentTurn = r.order[r.pick(len(r.order))]
	r.shots = 0
	r.battleStart = r.now()
	return true, nil
}

// FireShot 開火
//
// 依序檢查：階段、回合、邊界、重複射擊。
// 只有 miss 換手；若擊沉最後一艘船則直接結束並記錄射手為勝者。
func (r *Room) FireShot(shooterID string, c Coordinate) (ShotResult, bool, error) {
	if r.phase != PhaseBattle {
		return ShotResult{}, false, ErrWrongPhase
	}
	if r.currentTurn != shooterID {
		return ShotResult{}, false, ErrNotYourTurn
	}
	if !c.InBounds() {
		return ShotResult{}, false, ErrCoordinateOutOfBounds
	}

	targetID := r.Opponent(shooterID)
	target, ok := r.players[targetID]
	if !ok || target.Board == nil {
		return ShotResult{}, false, ErrNoOpponent
	}
	if target.Board.IsAlreadyShot(c) {
		return ShotResult{}, false, ErrAlreadyShot
	}

	result, err := target.Board.ReceiveShot(c)
	if err != nil {
		return ShotResult{}, false, err
	}
	r.shots++

	if target.Board.AllShipsSunk() {
		r.finish(shooterID, ReasonAllSunk)
		return result, true, nil
	}
	if result.Result == ShotMiss {
		r.currentTurn = targetID
	}
	return result, false, nil
}

// HandleDisconnect 處理斷線
//
// LOBBY：立即移除。其他階段：標記離線並啟動寬限期，
// 呼叫方以返回的世代排程到期檢查（見 ExpireDisconnect）。
func (r *Room) HandleDisconnect(id string) (Disconnect, error) {
	p, ok := r.players[id]
	if !ok {
		return Disconnect{}, ErrPlayerNotFound
	}

	if r.phase == PhaseLobby {
		r.remove(id)
		return Disconnect{Removed: true, Empty: len(r.players) == 0}, nil
	}

	p.Connected = false
	p.generation++
	// 離線玩家的再戰票作廢，LOBBY 不會帶著離線玩家重開
	delete(r.rematchVotes, id)
	p.DisconnectDeadline = r.now().Add(r.gracePeriod)

	return Disconnect{
		Deadline:   p.DisconnectDeadline,
		Generation: p.generation,
	}, nil
}

// HandleReconnect 處理重連：取消寬限期並標記在線
func (r *Room) HandleReconnect(id string) error {
	p, ok := r.players[id]
	if !ok {
		return ErrPlayerNotFound
	}
	p.generation++
	p.Connected = true
	p.DisconnectDeadline = time.Time{}
	return nil
}

// ExpireDisconnect 寬限期到期
//
// 世代不符（期間重連過）或玩家已在線時返回 false，不做任何事。
// 否則：遊戲進行中則對手獲勝；然後移除該玩家。
func (r *Room) ExpireDisconnect(id string, generation uint64) (Expiry, bool) {
	p, ok := r.players[id]
	if !ok || p.Connected || p.generation != generation {
		return Expiry{}, false
	}

	var over *GameOver
	if opponent := r.Opponent(id); r.phase.Active() && opponent != "" {
		over = r.finish(opponent, ReasonForfeitTimeout)
	}
	r.remove(id)

	return Expiry{GameOver: over, Empty: len(r.players) == 0}, true
}

// RequestRematch 投票再戰，雙方都投票後重置回 LOBBY
//
// 只有在線玩家能投票；斷線會撤回已投的票。
func (r *Room) RequestRematch(id string) (bool, error) {
	p, ok := r.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if r.phase != PhaseFinished {
		return false, ErrWrongPhase
	}
	if !p.Connected {
		return false, ErrDisconnected
	}

	r.rematchVotes[id] = true
	if len(r.players) < MaxPlayers || len(r.rematchVotes) < MaxPlayers {
		return false, nil
	}

	r.reset()
	return true, nil
}

// RemovePlayer 主動離開
//
// 遊戲進行中離開視為棄權：對手獲勝，離開者的艦隊供揭露。
// FINISHED 階段離開不會再次結算。
func (r *Room) RemovePlayer(id string) (*GameOver, error) {
	if !r.HasPlayer(id) {
		return nil, ErrPlayerNotFound
	}

	var over *GameOver
	if opponent := r.Opponent(id); r.phase.Active() && opponent != "" {
		over = r.finish(opponent, ReasonForfeitLeave)
	}
	r.remove(id)

	return over, nil
}

// Snapshot 返回 viewerID 視角的快照；viewerID 為空時不含棋盤
func (r *Room) Snapshot(viewerID string) Snapshot {
	s := Snapshot{
		Code:        r.Code,
		Phase:       r.phase,
		Players:     r.Players(),
		CurrentTurn: r.currentTurn,
		Winner:      r.winner,
	}

	p, ok := r.players[viewerID]
	if !ok {
		return s
	}
	if p.Board != nil {
		s.OwnBoard = p.Board.OwnerView()
		s.OwnFleet = p.Board.Placements()
	}
	if opp, ok := r.players[r.Opponent(viewerID)]; ok && opp.Board != nil {
		s.OpponentBoard = opp.Board.PublicView()
		s.OpponentSunk = opp.Board.SunkShips()
	}
	return s
}

// finish 結束本局（BATTLE/PLACEMENT → FINISHED）
func (r *Room) finish(winnerID string, reason WinReason) *GameOver {
	loserID := r.Opponent(winnerID)

	over := &GameOver{
		WinnerID:   winnerID,
		LoserID:    loserID,
		Reason:     reason,
		Fleets:     make(map[string][]ShipPlacement, MaxPlayers),
		Shots:      r.shots,
		StartedAt:  r.battleStart,
		FinishedAt: r.now(),
	}
	for id, p := range r.players {
		fleet := []ShipPlacement{}
		if p.Board != nil {
			fleet = p.Board.Placements()
		}
		over.Fleets[id] = fleet
	}
	if w, ok := r.players[winnerID]; ok {
		over.WinnerName = w.Name
	}
	if l, ok := r.players[loserID]; ok {
		over.LoserName = l.Name
	}

	r.phase = PhaseFinished
	r.winner = winnerID
	r.lastResult = over
	return over
}

// reset FINISHED → LOBBY，保留名單與名字
func (r *Room) reset() {
	r.phase = PhaseLobby
	r.currentTurn = ""
	r.winner = ""
	r.shots = 0
	r.battleStart = time.Time{}
	clear(r.rematchVotes)
	for _, p := range r.players {
		p.Ready = false
		p.Board = nil
	}
}

func (r *Room) remove(id string) {
	delete(r.players, id)
	delete(r.rematchVotes, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
