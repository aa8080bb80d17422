package session

import "sync"

// Session 連接綁定的玩家身份
type Session struct {
	PlayerID string
	RoomCode string
}

// sessionTable 會話表
//
//	byConn:   connID → {playerID, roomCode}
//	byPlayer: playerID → connID（當前擁有該玩家的連接）
//
// 重連時同一玩家可能短暫有兩個連接，byPlayer 只指向最新的那個；
// 舊連接關閉時發現自己不是擁有者，就不會觸發斷線處理。
type sessionTable struct {
	mu       sync.RWMutex
	byConn   map[string]Session
	byPlayer map[string]string
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		byConn:   make(map[string]Session),
		byPlayer: make(map[string]string),
	}
}

// bind 綁定連接與玩家，返回之前擁有該玩家的連接（沒有則為空）
func (t *sessionTable) bind(connID string, s Session) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.byPlayer[s.PlayerID]
	if prev == connID {
		prev = ""
	}
	t.byConn[connID] = s
	t.byPlayer[s.PlayerID] = connID
	return prev
}

// rollback 撤銷 bind：移除 connID 的綁定並把玩家交還給 prev
func (t *sessionTable) rollback(connID, prev string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byConn[connID]
	if !ok {
		return
	}
	delete(t.byConn, connID)
	if t.byPlayer[s.PlayerID] != connID {
		return
	}
	if old, ok := t.byConn[prev]; ok && prev != "" && old.PlayerID == s.PlayerID {
		t.byPlayer[s.PlayerID] = prev
		return
	}
	delete(t.byPlayer, s.PlayerID)
}

// unbind 移除連接的綁定；owner 表示該連接是否仍擁有玩家
func (t *sessionTable) unbind(connID string) (s Session, owner bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byConn[connID]
	if !ok {
		return Session{}, false
	}
	delete(t.byConn, connID)
	if t.byPlayer[s.PlayerID] == connID {
		delete(t.byPlayer, s.PlayerID)
		owner = true
	}
	return s, owner
}

// unbindPlayer 移除玩家的綁定（房間關閉時）
func (t *sessionTable) unbindPlayer(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if connID, ok := t.byPlayer[playerID]; ok {
		delete(t.byPlayer, playerID)
		if t.byConn[connID].PlayerID == playerID {
			delete(t.byConn, connID)
		}
	}
}

func (t *sessionTable) lookup(connID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byConn[connID]
	return s, ok
}

func (t *sessionTable) connOf(playerID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byPlayer[playerID]
	return id, ok
}

func (t *sessionTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn)
}

// playerLocks 每個玩家一把鎖
//
// 斷線與重連都是「改會話表 + 呼叫房間」兩步，同一玩家的兩個流程不能交錯，
// 否則舊連接遲到的 Disconnect 可能落在新連接的 Reconnect 之後。
type playerLocks struct {
	mu    sync.Mutex
	locks map[string]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[string]*playerLock)}
}

// lock 取得玩家鎖，返回解鎖函數
func (p *playerLocks) lock(playerID string) func() {
	p.mu.Lock()
	l, ok := p.locks[playerID]
	if !ok {
		l = &playerLock{}
		p.locks[playerID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, playerID)
		}
		p.mu.Unlock()
	}
}
