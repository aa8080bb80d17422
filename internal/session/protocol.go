package session

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/milenrab97/battleships/internal/game"
	"github.com/milenrab97/battleships/internal/lobby"
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// MessageType 客戶端請求類型
type MessageType string

const (
	MsgCreateRoom      MessageType = "createRoom"
	MsgJoinRoom        MessageType = "joinRoom"
	MsgSetReady        MessageType = "playerReady"
	MsgSubmitPlacement MessageType = "placeShips"
	MsgFireShot        MessageType = "fireShot"
	MsgRequestRematch  MessageType = "playAgain"
	MsgLeaveRoom       MessageType = "leaveRoom"
	MsgReconnect       MessageType = "reconnect"
	MsgPing            MessageType = "ping"
)

// 回覆的 event 欄位
const (
	EventReply = "reply"
	EventPong  = "pong"
)

// MaxNameLength 玩家名稱上限（字元）
const MaxNameLength = 24

// 協定錯誤
var (
	ErrNotInRoom     = apperrors.New(apperrors.ErrCodeNotApplicable, "not in a room")
	ErrAlreadyInRoom = apperrors.New(apperrors.ErrCodeInvalidInput, "already in a room, leave first")
	ErrBadMessage    = apperrors.New(apperrors.ErrCodeInvalidInput, "malformed message")
	ErrUnknownType   = apperrors.New(apperrors.ErrCodeInvalidInput, "unknown message type")
	ErrInvalidName   = apperrors.New(apperrors.ErrCodeInvalidInput, "player name must be 1-24 characters")
)

// Request 客戶端請求信封
//
//	{"type": "fireShot", "request_id": "7", "data": {"coordinate": {"row": 0, "col": 1}}}
type Request struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Reply 對請求的直接回覆
//
// 通知使用 lobby.Event（{"event": ..., "data": ...}），回覆的 event 固定為 "reply"，
// 客戶端依 request_id 對應請求。
type Reply struct {
	Event     string     `json:"event"`
	RequestID string     `json:"request_id,omitempty"`
	Success   bool       `json:"success"`
	Error     *ErrorBody `json:"error,omitempty"`
	Data      any        `json:"data,omitempty"`
}

// ErrorBody 錯誤回覆內容
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// 請求內容

type CreateRoomData struct {
	PlayerName string `json:"player_name"`
}

type JoinRoomData struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
}

type SetReadyData struct {
	Ready bool `json:"ready"`
}

type PlacementData struct {
	Placements []game.ShipPlacement `json:"placements"`
}

type FireShotData struct {
	Coordinate game.Coordinate `json:"coordinate"`
}

type ReconnectData struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
}

// 回覆內容

type CreatedReply struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
}

type JoinedReply struct {
	RoomCode string            `json:"room_code"`
	PlayerID string            `json:"player_id"`
	Players  []game.PlayerInfo `json:"players"`
}

func okReply(requestID string, data any) Reply {
	return Reply{Event: EventReply, RequestID: requestID, Success: true, Data: data}
}

func errorReply(requestID string, err error) Reply {
	appErr := apperrors.As(err)
	msg := appErr.Message
	if appErr.Details != "" {
		msg = appErr.Details
	}
	if appErr.Code == apperrors.ErrCodeInternal {
		msg = "internal error"
	}
	return Reply{
		Event:     EventReply,
		RequestID: requestID,
		Error:     &ErrorBody{Code: appErr.Code, Message: msg},
	}
}

// decode 解析請求內容；缺少 data 時保留零值
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrBadMessage.WithDetails("invalid data: " + err.Error())
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// notification 序列化通知
func notification(ev lobby.Event) ([]byte, error) {
	return json.Marshal(ev)
}
