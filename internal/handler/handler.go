// Package handler 提供 HTTP API
//
// 遊戲本身走 WebSocket（/ws），HTTP 只負責健康檢查、統計與唯讀查詢：
// 房間摘要永遠不包含棋盤內容。
package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/milenrab97/battleships/internal/game"
	"github.com/milenrab97/battleships/internal/lobby"
	"github.com/milenrab97/battleships/internal/session"
	"github.com/milenrab97/battleships/internal/storage"
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// Pinger 可做健康檢查的依賴
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler HTTP 請求處理器
type Handler struct {
	registry *lobby.Registry
	hub      *session.Hub
	results  storage.ResultStore
	logger   *slog.Logger
	started  time.Time
}

// NewHandler 創建 HTTP 處理器；hub 為 nil 時不註冊 /ws
func NewHandler(registry *lobby.Registry, hub *session.Hub, results storage.ResultStore, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		hub:      hub,
		results:  results,
		logger:   logger,
		started:  time.Now(),
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	if h.hub != nil {
		mux.HandleFunc("GET /ws", wrap(h.hub.ServeWS))
	}

	mux.HandleFunc("GET /api/v1/rooms/{code}", wrap(h.getRoom))
	mux.HandleFunc("GET /api/v1/results", wrap(h.listResults))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// getRoom 房間摘要
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	actor, err := h.registry.GetRoom(r.PathValue("code"))
	if err != nil {
		h.appError(w, err)
		return
	}

	summary, err := actor.Summary(r.Context())
	if err != nil {
		h.appError(w, err)
		return
	}
	h.jsonResponse(w, summary, http.StatusOK)
}

// listResults 最近的對局結果
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 || val > maxResultLimit {
			h.appError(w, apperrors.Newf(apperrors.ErrCodeInvalidInput, "limit must be between 1 and %d", maxResultLimit))
			return
		}
		limit = val
	}

	results, err := h.results.Recent(r.Context(), limit)
	if err != nil {
		h.appError(w, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "result store unavailable"))
		return
	}
	h.jsonResponse(w, map[string]any{
		"results": results,
		"count":   len(results),
	}, http.StatusOK)
}

// health 健康檢查；結果存儲不可用時返回 503
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}

	if p, ok := h.results.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("結果存儲健康檢查失敗", "error", err)
			resp["status"] = "degraded"
			resp["store"] = "unavailable"
			h.jsonResponse(w, resp, http.StatusServiceUnavailable)
			return
		}
		resp["store"] = "ok"
	}

	h.jsonResponse(w, resp, http.StatusOK)
}

// statsResponse /stats 回應
type statsResponse struct {
	Rooms       int                `json:"rooms"`
	Players     int                `json:"players"`
	ByPhase     map[game.Phase]int `json:"by_phase"`
	Connections int                `json:"connections"`
	Sessions    int                `json:"sessions"`
	Results     *storage.Totals    `json:"results,omitempty"`
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	live := h.registry.Stats()
	resp := statsResponse{
		Rooms:   live.TotalRooms,
		Players: live.TotalPlayers,
		ByPhase: live.ByPhase,
	}
	if h.hub != nil {
		resp.Connections = h.hub.ConnectionCount()
		resp.Sessions = h.hub.SessionCount()
	}

	totals, err := h.results.Totals(r.Context())
	if err != nil {
		// 存儲不可用時仍返回即時統計
		h.logger.Warn("讀取對局統計失敗", "error", err)
	} else {
		resp.Results = &totals
	}

	h.jsonResponse(w, resp, http.StatusOK)
}

// statusFor 錯誤碼對應的 HTTP 狀態碼
func statusFor(code string) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeInvalidFleet, apperrors.ErrCodeOutOfBounds:
		return http.StatusBadRequest
	case apperrors.ErrCodeRoomFull, apperrors.ErrCodeGameInProgress, apperrors.ErrCodeAlreadyPlaced,
		apperrors.ErrCodeWrongPhase, apperrors.ErrCodeNotYourTurn, apperrors.ErrCodeAlreadyShot:
		return http.StatusConflict
	case apperrors.ErrCodeNotApplicable:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeRoomClosed:
		return http.StatusGone
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// appError 返回錯誤響應 {"error": {"code", "message"}}
func (h *Handler) appError(w http.ResponseWriter, err error) {
	appErr := apperrors.As(err)
	status := statusFor(appErr.Code)
	msg := appErr.Message
	if status >= http.StatusInternalServerError {
		h.logger.Error("請求處理失敗", "code", appErr.Code, "error", err)
	}
	h.jsonResponse(w, map[string]any{
		"error": map[string]string{"code": appErr.Code, "message": msg},
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.appError(w, apperrors.New(apperrors.ErrCodeInternal, "internal server error"))
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
//
// WebSocket 升級需要 Hijack，包裝後必須把它轉發出去。
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack 實現 http.Hijacker
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap 供 http.ResponseController 取得底層 ResponseWriter
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
