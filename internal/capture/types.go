package capture

import (
	"fmt"
	"time"
)

// Status は撮影リクエストの状態を表す
type Status string

const (
	StatusRunning   Status = "running"   // 撮影進行中
	StatusCompleted Status = "completed" // 正常終了
	StatusFailed    Status = "failed"    // 失敗
)

// Terminal は終了状態かどうかを返す
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase は撮影リクエストの進行フェーズを表す
// 観測用のラベルであり、成否の判定には使用しない
type Phase string

const (
	PhaseNone       Phase = ""           // フェーズなし
	PhaseLights     Phase = "lights"     // 照明点灯待ち
	PhaseConnecting Phase = "connecting" // トンネル接続中
	PhaseAutofocus  Phase = "autofocus"  // オートフォーカス実行中
	PhaseCapture    Phase = "capture"    // 画像取得中
)

// BatchPhase はバッチ進行フェーズのラベルを生成する
func BatchPhase(index, total int) Phase {
	return Phase(fmt.Sprintf("batch_%d_of_%d", index, total))
}

// Request は撮影リクエストの状態レコード
// Trackerが保持し、外部にはコピーが返される
type Request struct {
	ID             string    `json:"id"`
	HangarID       string    `json:"hangar_id"`
	DroneName      string    `json:"drone_name"`
	SessionFolder  string    `json:"session_folder"`
	Status         Status    `json:"status"`
	CurrentPhase   Phase     `json:"current_phase"`
	CurrentBatch   []string  `json:"current_batch_cameras"`
	Captured       []string  `json:"captured_cameras"`
	Failed         []string  `json:"failed_cameras"`
	TotalCameras   int       `json:"total_cameras"`
	Error          string    `json:"error,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

// EventType は購読者に配信されるイベントの種別
type EventType string

const (
	EventConnected EventType = "connected" // 購読開始の確認
	EventPhase     EventType = "phase"     // フェーズ遷移
	EventBatch     EventType = "batch"     // バッチ開始
	EventCamera    EventType = "camera"    // カメラ単位の結果
	EventCompleted EventType = "completed" // 正常終了
	EventFailed    EventType = "failed"    // 失敗
)

// Event は進捗購読者に配信されるイベント
type Event struct {
	Type       EventType `json:"type"`
	Phase      Phase     `json:"phase,omitempty"`
	BatchIndex int       `json:"batch_index,omitempty"`
	BatchTotal int       `json:"batch_total,omitempty"`
	Cameras    []string  `json:"cameras,omitempty"`
	CameraID   string    `json:"camera_id,omitempty"`
	Result     string    `json:"result,omitempty"` // "captured" または "failed"
	Captured   int       `json:"captured_count,omitempty"`
	Failed     int       `json:"failed_count,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SubmitRequest は撮影リクエストの投入パラメータ
type SubmitRequest struct {
	HangarID       string `json:"hangar_id"`
	DroneName      string `json:"drone_name"`
	InspectionType string `json:"inspection_type,omitempty"`
	SessionName    string `json:"session_name,omitempty"`
}
