package session

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/milenrab97/battleships/internal/lobby"
	apperrors "github.com/milenrab97/battleships/pkg/errors"
	"github.com/milenrab97/battleships/pkg/logger"
)

// handle 解析並執行一個請求，返回給發起者的回覆
//
// 所有錯誤都以回覆的形式返回，不會讓連接或房間崩潰。
func (hub *Hub) handle(c *Connection, raw []byte) Reply {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorReply("", ErrBadMessage)
	}

	ctx, cancel := context.WithTimeout(c.ctx, hub.cfg.RequestTimeout)
	defer cancel()

	data, err := hub.dispatch(ctx, c, req)
	if err != nil {
		hub.logFailure(ctx, c, req, err)
		return errorReply(req.RequestID, err)
	}
	if req.Type == MsgPing {
		return Reply{Event: EventPong, RequestID: req.RequestID, Success: true}
	}
	return okReply(req.RequestID, data)
}

func (hub *Hub) logFailure(ctx context.Context, c *Connection, req Request, err error) {
	if s, ok := hub.sessions.lookup(c.id); ok {
		ctx = logger.WithRoomCode(logger.WithPlayerID(ctx, s.PlayerID), s.RoomCode)
	}
	if apperrors.IsUserError(err) {
		c.logger.DebugContext(ctx, "請求被拒絕", "type", req.Type, "error", err)
		return
	}
	c.logger.WarnContext(ctx, "請求失敗", "type", req.Type, "error", err)
}

func (hub *Hub) dispatch(ctx context.Context, c *Connection, req Request) (any, error) {
	switch req.Type {
	case MsgPing:
		return nil, nil

	case MsgCreateRoom:
		var d CreateRoomData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		return hub.createRoom(c, d)

	case MsgJoinRoom:
		var d JoinRoomData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		return hub.joinRoom(ctx, c, d)

	case MsgReconnect:
		var d ReconnectData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		return hub.reconnect(ctx, c, d)

	case MsgSetReady:
		var d SetReadyData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, hub.inRoom(ctx, c, func(a *lobby.RoomActor, s Session) error {
			return a.SetReady(ctx, s.PlayerID, d.Ready)
		})

	case MsgSubmitPlacement:
		var d PlacementData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		return nil, hub.inRoom(ctx, c, func(a *lobby.RoomActor, s Session) error {
			return a.SubmitPlacement(ctx, s.PlayerID, d.Placements)
		})

	case MsgFireShot:
		var d FireShotData
		if err := decode(req.Data, &d); err != nil {
			return nil, err
		}
		var res lobby.FireResult
		err := hub.inRoom(ctx, c, func(a *lobby.RoomActor, s Session) error {
			var err error
			res, err = a.FireShot(ctx, s.PlayerID, d.Coordinate)
			return err
		})
		if err != nil {
			return nil, err
		}
		return res, nil

	case MsgRequestRematch:
		return nil, hub.inRoom(ctx, c, func(a *lobby.RoomActor, s Session) error {
			return a.RequestRematch(ctx, s.PlayerID)
		})

	case MsgLeaveRoom:
		return nil, hub.leaveRoom(ctx, c)

	default:
		return nil, ErrUnknownType.WithDetails("unknown message type: " + string(req.Type))
	}
}

// inRoom 解析連接所屬的玩家與房間後執行操作
func (hub *Hub) inRoom(ctx context.Context, c *Connection, fn func(*lobby.RoomActor, Session) error) error {
	s, ok := hub.sessions.lookup(c.id)
	if !ok {
		return ErrNotInRoom
	}
	actor, err := hub.registry.GetRoom(s.RoomCode)
	if err != nil {
		hub.sessions.unbind(c.id)
		return err
	}
	return fn(actor, s)
}

// ensureFree 連接不能同時屬於兩個房間；綁定的房間已不存在時自動解除
func (hub *Hub) ensureFree(c *Connection) error {
	s, ok := hub.sessions.lookup(c.id)
	if !ok {
		return nil
	}
	if actor, err := hub.registry.FindRoomByPlayer(s.PlayerID); err == nil && actor.Code() == s.RoomCode {
		return ErrAlreadyInRoom
	}
	hub.sessions.unbind(c.id)
	return nil
}

func (hub *Hub) createRoom(c *Connection, d CreateRoomData) (any, error) {
	name, err := cleanName(d.PlayerName)
	if err != nil {
		return nil, err
	}
	if err := hub.ensureFree(c); err != nil {
		return nil, err
	}

	playerID := uuid.NewString()
	actor, err := hub.registry.CreateRoom(playerID, name)
	if err != nil {
		return nil, err
	}
	hub.sessions.bind(c.id, Session{PlayerID: playerID, RoomCode: actor.Code()})

	c.logger.Info("創建房間", "room_code", actor.Code(), "player_id", playerID)
	return CreatedReply{RoomCode: actor.Code(), PlayerID: playerID}, nil
}

func (hub *Hub) joinRoom(ctx context.Context, c *Connection, d JoinRoomData) (any, error) {
	name, err := cleanName(d.PlayerName)
	if err != nil {
		return nil, err
	}
	if err := hub.ensureFree(c); err != nil {
		return nil, err
	}
	actor, err := hub.registry.GetRoom(d.RoomCode)
	if err != nil {
		return nil, err
	}

	// 先綁定再加入：加入後房間推送的通知必須能找到這個連接
	playerID := uuid.NewString()
	prev := hub.sessions.bind(c.id, Session{PlayerID: playerID, RoomCode: actor.Code()})
	snap, err := actor.Join(ctx, playerID, name)
	if err != nil {
		hub.sessions.rollback(c.id, prev)
		return nil, err
	}

	c.logger.Info("加入房間", "room_code", actor.Code(), "player_id", playerID)
	return JoinedReply{RoomCode: actor.Code(), PlayerID: playerID, Players: snap.Players}, nil
}

// reconnect 以新連接接手既有玩家，回覆完整快照供客戶端重建畫面
func (hub *Hub) reconnect(ctx context.Context, c *Connection, d ReconnectData) (any, error) {
	if d.PlayerID == "" || d.RoomCode == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "room_code and player_id are required")
	}
	if s, ok := hub.sessions.lookup(c.id); ok && s.PlayerID != d.PlayerID {
		if err := hub.ensureFree(c); err != nil {
			return nil, err
		}
	}
	actor, err := hub.registry.GetRoom(d.RoomCode)
	if err != nil {
		return nil, err
	}

	unlock := hub.locks.lock(d.PlayerID)
	defer unlock()

	prev := hub.sessions.bind(c.id, Session{PlayerID: d.PlayerID, RoomCode: actor.Code()})
	snap, err := actor.Reconnect(ctx, d.PlayerID)
	if err != nil {
		hub.sessions.rollback(c.id, prev)
		return nil, err
	}

	// 舊連接已失去擁有權，關閉時不會再觸發斷線
	if prev != "" {
		hub.sessions.unbind(prev)
		if old, ok := hub.connection(prev); ok {
			old.close()
		}
	}

	c.logger.Info("玩家重連", "room_code", actor.Code(), "player_id", d.PlayerID, "replaced_conn", prev)
	return snap, nil
}

func (hub *Hub) leaveRoom(ctx context.Context, c *Connection) error {
	s, ok := hub.sessions.lookup(c.id)
	if !ok {
		return ErrNotInRoom
	}
	defer hub.sessions.unbind(c.id)

	actor, err := hub.registry.GetRoom(s.RoomCode)
	if err != nil {
		// 房間已經不存在，離開視為完成
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := actor.Leave(ctx, s.PlayerID); err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	return nil
}
