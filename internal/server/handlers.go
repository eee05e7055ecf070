package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"takanome/internal/capture"
	"takanome/internal/config"
	"takanome/internal/registry"
)

// Handler はHTTPエンドポイントの実装
type Handler struct {
	config       *config.Config
	registry     registry.Registry
	tracker      *capture.Tracker
	orchestrator *capture.Orchestrator
}

// errorResponse はエラー応答のJSON構造
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// hangarInfo は格納庫情報の応答用構造
// 照明の認証情報は外部に出さない
type hangarInfo struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SSHHost       string            `json:"ssh_host"`
	AssignedDrone string            `json:"assigned_drone"`
	LightsEnabled bool              `json:"lights_enabled"`
	Cameras       []registry.Camera `json:"cameras"`
}

// registerRoutes はHTTPルートを設定する
func (h *Handler) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", h.HealthCheck)

	api := engine.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/captures", h.SubmitCapture)
		api.GET("/captures/:id", h.GetCapture)
		api.GET("/captures/:id/events", h.SubscribeCapture)
		api.GET("/hangars", h.GetHangars)
		api.GET("/hangars/:id", h.GetHangar)
	}
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"hangars":   len(h.registry.ListHangars()),
		"timestamp": time.Now(),
	})
}

// SubmitCapture は撮影リクエストの投入エンドポイントの実装
//
// 検証に通れば202とリクエストIDを即座に返し、撮影は非同期に進む。
// 結果はポーリングまたは購読でのみ観測できる。
func (h *Handler) SubmitCapture(c *gin.Context) {
	var req capture.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディの解析に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	requestID, err := h.orchestrator.Submit(req)
	if err != nil {
		var vErr *capture.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, errorResponse{
				Error:     "validation_error",
				Message:   vErr.Message,
				Timestamp: time.Now(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "internal_error",
			Message:   "撮影リクエストの受付に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"request_id": requestID})
}

// GetCapture は撮影リクエストの状態取得エンドポイントの実装
func (h *Handler) GetCapture(c *gin.Context) {
	snapshot, err := h.tracker.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "request_not_found",
			Message:   "指定されたリクエストが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// SubscribeCapture は進捗購読エンドポイントの実装
//
// Server-Sent Eventsで接続確認・フェーズ遷移・終了イベントを配信する。
// リクエストが終了するか、クライアントが切断するまで接続を保つ。
// 購読者の切断は撮影にも他の購読者にも影響しない。
func (h *Handler) SubscribeCapture(c *gin.Context) {
	events, cancel, err := h.tracker.Subscribe(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "request_not_found",
			Message:   "指定されたリクエストが見つかりません",
			Timestamp: time.Now(),
		})
		return
	}
	defer cancel()

	// SSE用のレスポンスヘッダーを設定
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			// クライアントが切断された
			return false
		case ev, ok := <-events:
			if !ok {
				// リクエストが終了した
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}

// GetHangars は格納庫一覧取得エンドポイントの実装
func (h *Handler) GetHangars(c *gin.Context) {
	hangars := h.registry.ListHangars()
	infos := make([]hangarInfo, 0, len(hangars))
	for _, hangar := range hangars {
		infos = append(infos, toHangarInfo(&hangar))
	}

	c.JSON(http.StatusOK, gin.H{"hangars": infos})
}

// GetHangar は格納庫取得エンドポイントの実装
func (h *Handler) GetHangar(c *gin.Context) {
	hangar, found := h.registry.GetHangar(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "hangar_not_found",
			Message:   "指定された格納庫が見つかりません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, toHangarInfo(hangar))
}

// toHangarInfo は格納庫情報を応答用構造に変換する
func toHangarInfo(hangar *registry.Hangar) hangarInfo {
	return hangarInfo{
		ID:            hangar.ID,
		Name:          hangar.Name,
		SSHHost:       hangar.SSHHost,
		AssignedDrone: hangar.AssignedDrone,
		LightsEnabled: hangar.Lights.Enabled,
		Cameras:       hangar.Cameras,
	}
}
