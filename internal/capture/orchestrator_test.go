package capture

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"takanome/internal/config"
	"takanome/internal/registry"
)

// orchestratorTestConfig はテスト用の撮影設定を返す
func orchestratorTestConfig(t *testing.T) config.CaptureConfig {
	t.Helper()
	return config.CaptureConfig{
		SessionDir:         t.TempDir(),
		BatchSize:          4,
		BasePort:           18500,
		ParallelTimeout:    time.Second,
		SequentialTimeout:  time.Second,
		GlobalTimeout:      time.Minute,
		MaxDroneNameLength: 64,
	}
}

// newTestOrchestrator はモックを組み合わせたOrchestratorを作る
func newTestOrchestrator(t *testing.T, cfg config.CaptureConfig, capturer *MockCapturer, runner *MockRemoteRunner) (*Orchestrator, *Tracker) {
	t.Helper()

	reg := registry.NewMockRegistry(registry.Hangar{
		ID:      "hangar_a",
		Name:    "第一格納庫",
		SSHHost: "hangar-a.local",
	})
	tracker := NewTracker(time.Minute)

	return NewOrchestrator(cfg, reg, tracker, capturer, NewLightsController(), NewCleanupManager(runner)), tracker
}

// waitForTerminal はリクエストの終了をポーリングで待つ
func waitForTerminal(t *testing.T, tracker *Tracker, id string) Request {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := tracker.Snapshot(id)
		if err != nil {
			t.Fatalf("スナップショットの取得に失敗しました: %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("リクエストの終了がタイムアウトしました")
	return Request{}
}

// TestOrchestratorSubmit は撮影リクエストの正常完了をテストする
func TestOrchestratorSubmit(t *testing.T) {
	capturer := NewMockCapturer()
	runner := NewMockRemoteRunner()
	orchestrator, tracker := newTestOrchestrator(t, orchestratorTestConfig(t), capturer, runner)

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_a", DroneName: "drone_1"})
	if err != nil {
		t.Fatalf("リクエストの受付に失敗しました: %v", err)
	}
	if id == "" {
		t.Fatal("リクエストIDが空です")
	}

	snap := waitForTerminal(t, tracker, id)

	if snap.Status != StatusCompleted {
		t.Errorf("全台成功はcompletedになるべきです: got %s (error=%s)", snap.Status, snap.Error)
	}
	if len(snap.Captured) != 8 || len(snap.Failed) != 0 {
		t.Errorf("撮影結果が一致しません: captured=%d failed=%d", len(snap.Captured), len(snap.Failed))
	}
	if snap.TotalCameras != 8 {
		t.Errorf("カメラ総数が一致しません: %d", snap.TotalCameras)
	}
	if !strings.Contains(snap.SessionFolder, "hangar_a_inspection_drone_1_") {
		t.Errorf("セッションフォルダ名が一致しません: %s", snap.SessionFolder)
	}

	// 後始末はリクエストごとに一度だけ
	if runner.CallCount() != 1 {
		t.Errorf("後始末の実行回数が一致しません: %d", runner.CallCount())
	}
}

// TestOrchestratorMajorityFailure は過半数失敗時の成否判定をテストする
func TestOrchestratorMajorityFailure(t *testing.T) {
	capturer := NewMockCapturer()
	for i := 1; i <= 5; i++ {
		capturer.SetResult(fmt.Sprintf("camera_%d", i), fmt.Errorf("撮影に失敗"))
	}
	runner := NewMockRemoteRunner()
	orchestrator, tracker := newTestOrchestrator(t, orchestratorTestConfig(t), capturer, runner)

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_a", DroneName: "drone_1"})
	if err != nil {
		t.Fatalf("リクエストの受付に失敗しました: %v", err)
	}

	snap := waitForTerminal(t, tracker, id)

	if snap.Status != StatusFailed {
		t.Errorf("過半数失敗はfailedになるべきです: got %s", snap.Status)
	}
	if !strings.Contains(snap.Error, "半数") {
		t.Errorf("失敗理由が一致しません: %s", snap.Error)
	}

	// 失敗してもバッチは最後まで実行され、後始末も行われる
	if len(capturer.Calls()) != 8 {
		t.Errorf("全カメラが実行されていません: %d", len(capturer.Calls()))
	}
	if runner.CallCount() != 1 {
		t.Errorf("後始末の実行回数が一致しません: %d", runner.CallCount())
	}
}

// TestOrchestratorHalfFailure はちょうど半数の失敗が成功扱いになることをテストする
func TestOrchestratorHalfFailure(t *testing.T) {
	capturer := NewMockCapturer()
	for i := 1; i <= 4; i++ {
		capturer.SetResult(fmt.Sprintf("camera_%d", i), fmt.Errorf("撮影に失敗"))
	}
	runner := NewMockRemoteRunner()
	orchestrator, tracker := newTestOrchestrator(t, orchestratorTestConfig(t), capturer, runner)

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_a", DroneName: "drone_1"})
	if err != nil {
		t.Fatalf("リクエストの受付に失敗しました: %v", err)
	}

	snap := waitForTerminal(t, tracker, id)
	if snap.Status != StatusCompleted {
		t.Errorf("半数ちょうどの失敗はcompletedになるべきです: got %s", snap.Status)
	}
}

// TestOrchestratorPreflightFailure は事前確認失敗時の中断をテストする
func TestOrchestratorPreflightFailure(t *testing.T) {
	capturer := NewMockCapturer()
	capturer.SetPreflightError(fmt.Errorf("取得スクリプトが見つかりません"))
	runner := NewMockRemoteRunner()
	orchestrator, tracker := newTestOrchestrator(t, orchestratorTestConfig(t), capturer, runner)

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_a", DroneName: "drone_1"})
	if err != nil {
		t.Fatalf("リクエストの受付に失敗しました: %v", err)
	}

	snap := waitForTerminal(t, tracker, id)

	if snap.Status != StatusFailed {
		t.Errorf("事前確認失敗はfailedになるべきです: got %s", snap.Status)
	}
	if len(snap.Failed) != 8 || len(snap.Captured) != 0 {
		t.Errorf("全カメラが失敗として記録されるべきです: captured=%d failed=%d", len(snap.Captured), len(snap.Failed))
	}

	// バッチは1つも開始されず、後始末も実行されない
	if len(capturer.Calls()) != 0 {
		t.Errorf("事前確認失敗後に撮影が実行されています: %d", len(capturer.Calls()))
	}
	if runner.CallCount() != 0 {
		t.Errorf("事前確認失敗後に後始末が実行されています: %d", runner.CallCount())
	}
}

// TestOrchestratorGlobalTimeout は全体タイムアウトによる強制失敗をテストする
func TestOrchestratorGlobalTimeout(t *testing.T) {
	cfg := orchestratorTestConfig(t)
	cfg.GlobalTimeout = 50 * time.Millisecond

	capturer := NewMockCapturer()
	capturer.SetDelay(300 * time.Millisecond)
	runner := NewMockRemoteRunner()
	orchestrator, tracker := newTestOrchestrator(t, cfg, capturer, runner)

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_a", DroneName: "drone_1"})
	if err != nil {
		t.Fatalf("リクエストの受付に失敗しました: %v", err)
	}

	snap := waitForTerminal(t, tracker, id)

	if snap.Status != StatusFailed {
		t.Errorf("全体タイムアウトはfailedになるべきです: got %s", snap.Status)
	}
	if !strings.Contains(snap.Error, "全体タイムアウト") {
		t.Errorf("失敗理由が一致しません: %s", snap.Error)
	}

	// 遅れて届く完了を待っても終了状態は変化しない
	time.Sleep(700 * time.Millisecond)
	after, _ := tracker.Snapshot(id)
	if after.Status != StatusFailed || after.Error != snap.Error {
		t.Errorf("終了状態が後から変化しています: %+v", after)
	}
}

// TestOrchestratorValidation は受付時の検証をテストする
func TestOrchestratorValidation(t *testing.T) {
	capturer := NewMockCapturer()
	runner := NewMockRemoteRunner()

	reg := registry.NewMockRegistry(
		registry.Hangar{ID: "hangar_a", SSHHost: "hangar-a.local"},
		registry.Hangar{ID: "hangar_b", SSHHost: "hangar-b.local", AssignedDrone: "drone_7"},
	)
	tracker := NewTracker(time.Minute)
	orchestrator := NewOrchestrator(orchestratorTestConfig(t), reg, tracker, capturer, NewLightsController(), NewCleanupManager(runner))

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"格納庫が存在しない", SubmitRequest{HangarID: "hangar_x", DroneName: "drone_1"}},
		{"ドローン名が不正", SubmitRequest{HangarID: "hangar_a", DroneName: "drone 1!"}},
		{"ドローン名が空", SubmitRequest{HangarID: "hangar_a"}},
		{"割り当て外のドローン", SubmitRequest{HangarID: "hangar_b", DroneName: "drone_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := orchestrator.Submit(tt.req)
			if err == nil {
				t.Fatal("検証エラーが返されるべきです")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("ValidationErrorが返されるべきです: %T", err)
			}
			if id != "" {
				t.Errorf("検証エラー時にIDが返されています: %s", id)
			}
		})
	}

	// 検証エラー時は状態レコードもオーケストレーションも作られない
	if len(capturer.Calls()) != 0 {
		t.Error("検証エラー後に撮影が実行されています")
	}
}

// TestOrchestratorAssignedDrone は割り当て済みドローンの一致をテストする
func TestOrchestratorAssignedDrone(t *testing.T) {
	capturer := NewMockCapturer()
	runner := NewMockRemoteRunner()

	reg := registry.NewMockRegistry(
		registry.Hangar{ID: "hangar_b", SSHHost: "hangar-b.local", AssignedDrone: "drone_7"},
	)
	tracker := NewTracker(time.Minute)
	orchestrator := NewOrchestrator(orchestratorTestConfig(t), reg, tracker, capturer, NewLightsController(), NewCleanupManager(runner))

	id, err := orchestrator.Submit(SubmitRequest{HangarID: "hangar_b", DroneName: "drone_7"})
	if err != nil {
		t.Fatalf("割り当て済みドローンは受け付けられるべきです: %v", err)
	}

	snap := waitForTerminal(t, tracker, id)
	if snap.Status != StatusCompleted {
		t.Errorf("リクエストが完了していません: %s", snap.Status)
	}
}
