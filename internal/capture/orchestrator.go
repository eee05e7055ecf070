package capture

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"takanome/internal/config"
	"takanome/internal/registry"
)

// Orchestrator は撮影リクエスト全体の調整役
//
// 1つのリクエストを、照明 → バッチ撮影 → 後始末 → 成否判定 の
// パイプラインとして駆動する。投入は同期的に受け付け、
// 実行は別ゴルーチンで進める。進捗はTrackerを通じて観測する。
type Orchestrator struct {
	cfg      config.CaptureConfig
	registry registry.Registry
	tracker  *Tracker
	capturer Capturer
	lights   *LightsController
	cleanup  *CleanupManager
}

// NewOrchestrator は新しいOrchestratorを作成する
func NewOrchestrator(cfg config.CaptureConfig, reg registry.Registry, tracker *Tracker, capturer Capturer, lights *LightsController, cleanup *CleanupManager) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		tracker:  tracker,
		capturer: capturer,
		lights:   lights,
		cleanup:  cleanup,
	}
}

// Submit は撮影リクエストを受け付け、リクエストIDを返す
//
// 検証に通った時点で即座にIDを返し、実際の撮影は非同期に進む。
// 検証エラーの場合はオーケストレーションを開始せず、
// 状態レコードも作成しない。
func (o *Orchestrator) Submit(req SubmitRequest) (string, error) {
	if err := ValidateSubmission(req, o.cfg.MaxDroneNameLength); err != nil {
		return "", err
	}

	hangar, found := o.registry.GetHangar(req.HangarID)
	if !found {
		return "", &ValidationError{Field: "hangar_id", Message: "指定された格納庫が見つかりません"}
	}

	// 格納庫にドローンが割り当てられている場合は一致を要求する
	if hangar.AssignedDrone != "" && hangar.AssignedDrone != req.DroneName {
		return "", &ValidationError{
			Field:   "drone_name",
			Message: fmt.Sprintf("ドローン %s はこの格納庫に割り当てられていません", req.DroneName),
		}
	}

	inspectionType := req.InspectionType
	if inspectionType == "" {
		inspectionType = "inspection"
	}

	sessionFolder, err := NewSessionFolder(
		o.cfg.SessionDir, hangar.ID, inspectionType, req.DroneName, req.SessionName, time.Now())
	if err != nil {
		return "", err
	}

	request := &Request{
		ID:            uuid.New().String(),
		HangarID:      hangar.ID,
		DroneName:     req.DroneName,
		SessionFolder: sessionFolder,
		TotalCameras:  len(hangar.Cameras),
	}
	o.tracker.Create(request)

	go o.run(request.ID, hangar, req.DroneName, sessionFolder)

	return request.ID, nil
}

// run は撮影パイプラインを最後まで駆動する
func (o *Orchestrator) run(requestID string, hangar *registry.Hangar, droneName, sessionFolder string) {
	// HTTPリクエストの生存期間とは切り離して実行する
	ctx := context.Background()

	// パイプラインのどこで例外が起きてもリクエストは失敗へ遷移させる
	defer func() {
		if r := recover(); r != nil {
			log.Printf("撮影パイプラインで予期しないエラー: %v", r)
			o.tracker.Fail(requestID, fmt.Sprintf("予期しないエラー: %v", r))
		}
	}()

	// 全体タイムアウト。発火時点でまだ実行中なら強制的に失敗させる。
	// 実行中のサブプロセスは各自のタイムアウトで終了し、
	// 遅れて届く状態更新はTrackerが無視する
	timer := time.AfterFunc(o.cfg.GlobalTimeout, func() {
		o.tracker.Fail(requestID, fmt.Sprintf("全体タイムアウト (%s) を超過しました", o.cfg.GlobalTimeout))
	})
	defer timer.Stop()

	// 事前確認: 取得スクリプトが使えなければ1バッチも開始しない
	if err := o.capturer.Preflight(); err != nil {
		log.Printf("事前確認に失敗: %v", err)
		for _, cam := range hangar.Cameras {
			o.tracker.RecordResult(requestID, cam.ID, false)
		}
		o.tracker.Fail(requestID, fmt.Sprintf("取得スクリプトが利用できません: %v", err))
		return
	}

	// 照明フェーズ。失敗しても撮影はそのまま続行する
	o.tracker.SetPhase(requestID, PhaseLights)
	if o.lights.TurnOn(ctx, hangar) {
		log.Printf("格納庫 %s の照明を点灯しました", hangar.ID)
	} else {
		log.Printf("格納庫 %s の照明は点灯しません（無効または失敗）", hangar.ID)
	}

	// バッチ撮影
	scheduler := NewBatchScheduler(o.cfg, o.capturer, o.tracker)
	scheduler.Run(ctx, requestID, hangar, droneName, sessionFolder, hangar.Cameras)

	// 後始末: 結果に関わらずリクエストごとに一度だけ実行する
	if err := o.cleanup.ReleasePorts(ctx, hangar.SSHHost, o.cfg.BasePort, o.cfg.BatchSize); err != nil {
		log.Printf("リモート後始末に失敗: %v", err)
	}

	// 成否判定
	captured, failed, err := o.tracker.Counts(requestID)
	if err != nil {
		// 保持期間切れで削除された場合のみ起こりうる
		log.Printf("成否判定をスキップ: %v", err)
		return
	}

	switch EvaluateOutcome(captured, failed, len(hangar.Cameras)) {
	case StatusCompleted:
		o.tracker.Complete(requestID)
	case StatusFailed:
		reason := "撮影に失敗したカメラが半数を超えました"
		if captured == 0 {
			reason = "1台も撮影できませんでした"
		}
		o.tracker.Fail(requestID, reason)
	}
}
