package lobby_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/milenrab97/battleships/internal/events"
	"github.com/milenrab97/battleships/internal/game"
	"github.com/milenrab97/battleships/internal/lobby"
	"github.com/milenrab97/battleships/pkg/logger"
	"github.com/stretchr/testify/require"
)

const grace = 30 * time.Second

// manualScheduler 手動推進的調度器，同時充當時鐘
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) lobby.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now.Add(d), fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance 推進時間並執行到期的計時器
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due []func()
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// Pending 尚未觸發也未取消的計時器數
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Last 最近一個計時器
func (s *manualScheduler) Last() *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

// inbox 記錄每位玩家收到的通知
type inbox struct {
	mu     sync.Mutex
	events map[string][]lobby.Event
}

func newInbox() *inbox {
	return &inbox{events: make(map[string][]lobby.Event)}
}

func (in *inbox) Notify(playerID string, ev lobby.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events[playerID] = append(in.events[playerID], ev)
}

func (in *inbox) Types(playerID string) []lobby.EventType {
	in.mu.Lock()
	defer in.mu.Unlock()
	var types []lobby.EventType
	for _, ev := range in.events[playerID] {
		types = append(types, ev.Type)
	}
	return types
}

// Find 最後一個指定類型的通知
func (in *inbox) Find(playerID string, typ lobby.EventType) (lobby.Event, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	list := in.events[playerID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Type == typ {
			return list[i], true
		}
	}
	return lobby.Event{}, false
}

func (in *inbox) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events = make(map[string][]lobby.Event)
}

// published 記錄領域事件
type published struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *published) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *published) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []events.Type
	for _, ev := range p.events {
		types = append(types, ev.Type)
	}
	return types
}

func (p *published) Last(typ events.Type) (events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return events.Event{}, false
}

type fixture struct {
	reg   *lobby.Registry
	sched *manualScheduler
	inbox *inbox
	pub   *published
}

func newFixture(t *testing.T, opts ...lobby.Option) *fixture {
	t.Helper()
	f := &fixture{
		sched: newManualScheduler(),
		inbox: newInbox(),
		pub:   &published{},
	}
	cfg := lobby.Config{GracePeriod: grace, IdleTimeout: 10 * time.Minute}

	all := []lobby.Option{
		lobby.WithScheduler(f.sched),
		lobby.WithClock(f.sched.Now),
		lobby.WithNotifier(f.inbox),
		lobby.WithPublisher(f.pub),
		lobby.WithFirstTurnPicker(func(int) int { return 0 }),
	}
	f.reg = lobby.NewRegistry(cfg, logger.Discard(), append(all, opts...)...)
	t.Cleanup(func() { f.reg.Stop(context.Background()) })
	return f
}

func aliceFleet() []game.ShipPlacement {
	return []game.ShipPlacement{
		{ShipType: game.Destroyer, Start: game.Coordinate{Row: 0, Col: 0}, Orientation: game.Horizontal},
		{ShipType: game.Carrier, Start: game.Coordinate{Row: 2, Col: 0}, Orientation: game.Horizontal},
		{ShipType: game.Battleship, Start: game.Coordinate{Row: 4, Col: 0}, Orientation: game.Horizontal},
		{ShipType: game.Cruiser, Start: game.Coordinate{Row: 6, Col: 0}, Orientation: game.Horizontal},
		{ShipType: game.Submarine, Start: game.Coordinate{Row: 8, Col: 0}, Orientation: game.Horizontal},
	}
}

func bobFleet() []game.ShipPlacement {
	return []game.ShipPlacement{
		{ShipType: game.Carrier, Start: game.Coordinate{Row: 0, Col: 9}, Orientation: game.Vertical},
		{ShipType: game.Battleship, Start: game.Coordinate{Row: 0, Col: 7}, Orientation: game.Vertical},
		{ShipType: game.Cruiser, Start: game.Coordinate{Row: 0, Col: 5}, Orientation: game.Vertical},
		{ShipType: game.Submarine, Start: game.Coordinate{Row: 0, Col: 3}, Orientation: game.Vertical},
		{ShipType: game.Destroyer, Start: game.Coordinate{Row: 0, Col: 1}, Orientation: game.Vertical},
	}
}

// lobbyRoom alice 創建、bob 加入
func (f *fixture) lobbyRoom(t *testing.T) *lobby.RoomActor {
	t.Helper()
	ctx := context.Background()
	actor, err := f.reg.CreateRoom("alice", "Alice")
	require.NoError(t, err)
	_, err = actor.Join(ctx, "bob", "Bob")
	require.NoError(t, err)
	return actor
}

// battleRoom 雙方準備並佈署完畢，alice 先手
func (f *fixture) battleRoom(t *testing.T) *lobby.RoomActor {
	t.Helper()
	ctx := context.Background()
	actor := f.lobbyRoom(t)
	require.NoError(t, actor.SetReady(ctx, "alice", true))
	require.NoError(t, actor.SetReady(ctx, "bob", true))
	require.NoError(t, actor.SubmitPlacement(ctx, "alice", aliceFleet()))
	require.NoError(t, actor.SubmitPlacement(ctx, "bob", bobFleet()))
	require.Equal(t, game.PhaseBattle, actor.Phase())
	return actor
}

// flush 等待 actor 處理完之前投遞的命令
func flush(actor *lobby.RoomActor) {
	_, _ = actor.Snapshot(context.Background(), "")
}
