package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/milenrab97/battleships/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestAppError_Is 測試以錯誤碼比對
func TestAppError_Is(t *testing.T) {
	notYourTurn := apperrors.New(apperrors.ErrCodeNotYourTurn, "not your turn")

	wrapped := fmt.Errorf("fire shot: %w", apperrors.New(apperrors.ErrCodeNotYourTurn, "其他訊息"))
	assert.True(t, stderrors.Is(wrapped, notYourTurn))
	assert.False(t, stderrors.Is(wrapped, apperrors.New(apperrors.ErrCodeAlreadyShot, "")))
}

// TestAppError_Error 測試錯誤字串
func TestAppError_Error(t *testing.T) {
	err := apperrors.New(apperrors.ErrCodeRoomFull, "room is full")
	assert.Equal(t, "[ROOM_FULL] room is full", err.Error())

	inner := stderrors.New("boom")
	wrapped := apperrors.Wrap(inner, apperrors.ErrCodeInternal, "publish failed")
	assert.Equal(t, "[INTERNAL_ERROR] publish failed: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}

// TestWithDetails 測試 WithDetails 不修改原值
func TestWithDetails(t *testing.T) {
	base := apperrors.New(apperrors.ErrCodeInvalidFleet, "invalid fleet")
	detailed := base.WithDetails("carrier")

	assert.Empty(t, base.Details)
	assert.Equal(t, "carrier", detailed.Details)
	assert.ErrorIs(t, detailed, base)
}

// TestCodeOf 測試錯誤碼擷取
func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error", err: apperrors.New(apperrors.ErrCodeOutOfBounds, "x"), want: apperrors.ErrCodeOutOfBounds},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", apperrors.New(apperrors.ErrCodeNotFound, "x")), want: apperrors.ErrCodeNotFound},
		{name: "plain", err: stderrors.New("plain"), want: apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.CodeOf(tt.err))
		})
	}
}

// TestIsUserError 測試使用者錯誤分類
func TestIsUserError(t *testing.T) {
	assert.True(t, apperrors.IsUserError(apperrors.New(apperrors.ErrCodeAlreadyShot, "")))
	assert.True(t, apperrors.IsNotFound(apperrors.New(apperrors.ErrCodeNotFound, "")))
	assert.False(t, apperrors.IsUserError(apperrors.New(apperrors.ErrCodeNotApplicable, "")))
	assert.False(t, apperrors.IsUserError(stderrors.New("plain")))

	converted := apperrors.As(stderrors.New("plain"))
	assert.Equal(t, apperrors.ErrCodeInternal, converted.Code)
}
