// Package errors 提供對戰服務的錯誤模型
//
// 所有使用者錯誤與協定錯誤都以值的形式回傳（*AppError），
// 由傳輸層轉換為 {code, message} 回覆，不會以 panic 的形式穿越邊界。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 房間或玩家不存在
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeRoomFull 房間已滿（兩人）
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeGameInProgress 遊戲已開始，不能加入
	ErrCodeGameInProgress = "GAME_IN_PROGRESS"
	// ErrCodeInvalidFleet 艦隊佈署不合法
	ErrCodeInvalidFleet = "INVALID_FLEET"
	// ErrCodeAlreadyPlaced 已經佈署過艦隊
	ErrCodeAlreadyPlaced = "ALREADY_PLACED"
	// ErrCodeWrongPhase 當前階段不允許此操作
	ErrCodeWrongPhase = "WRONG_PHASE"
	// ErrCodeNotYourTurn 不是你的回合
	ErrCodeNotYourTurn = "NOT_YOUR_TURN"
	// ErrCodeOutOfBounds 座標超出棋盤
	ErrCodeOutOfBounds = "OUT_OF_BOUNDS"
	// ErrCodeAlreadyShot 該格已經射擊過
	ErrCodeAlreadyShot = "ALREADY_SHOT"
	// ErrCodeNotApplicable 操作缺少玩家 / 房間上下文（協定錯誤）
	ErrCodeNotApplicable = "NOT_APPLICABLE"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeRoomClosed 房間已關閉
	ErrCodeRoomClosed = "ROOM_CLOSED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 外部服務不可用
	ErrCodeUnavailable = "UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is（以錯誤碼比對）
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 以格式化訊息創建錯誤
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本
//
// 預定義錯誤是共享的值，不能原地修改。
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// CodeOf 取得錯誤碼，非 AppError 一律視為內部錯誤
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// As 轉換為 AppError，非 AppError 會被包裝成內部錯誤
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrCodeInternal, "internal error")
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsUserError 判斷是否為使用者可修正的錯誤
//
// 使用者錯誤只回報給發起者，不記錄為 error 等級日誌。
func IsUserError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeRoomFull, ErrCodeGameInProgress, ErrCodeInvalidFleet,
		ErrCodeAlreadyPlaced, ErrCodeWrongPhase, ErrCodeNotYourTurn, ErrCodeOutOfBounds,
		ErrCodeAlreadyShot, ErrCodeInvalidInput:
		return true
	}
	return false
}
