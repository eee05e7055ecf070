package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrRequestNotFound は未知または期限切れのリクエストIDを示す
var ErrRequestNotFound = fmt.Errorf("リクエストが見つかりません")

// subscriberBuffer は購読者チャンネルのバッファ数
// 受信が追いつかない購読者にはイベントを届けず読み飛ばす
const subscriberBuffer = 32

// subscriber は1つの進捗購読を表す
type subscriber struct {
	ch     chan Event
	closed bool
}

// Tracker は撮影リクエストの状態を保持する注入可能なストア
//
// リクエストごとの状態レコードの唯一の書き込み先であり、
// ポーリングと購読の両方へ同じ内容を提供する。
// 終了状態に達したレコードへの書き込みは黙って無視される。
// 終了後は保持期間を過ぎたレコードをバックグラウンドで削除する。
type Tracker struct {
	requests map[string]*Request
	subs     map[string][]*subscriber
	grace    time.Duration
	mu       sync.RWMutex

	// 掃除ゴルーチン制御用
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTracker は新しいTrackerを作成する
func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{
		requests: make(map[string]*Request),
		subs:     make(map[string][]*subscriber),
		grace:    grace,
		stopCh:   make(chan struct{}),
	}
}

// Start は期限切れレコードの掃除ゴルーチンを開始する
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.sweep(ctx)
}

// Stop は掃除ゴルーチンを停止する
func (t *Tracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// sweep は定期的に期限切れレコードを削除する
func (t *Tracker) sweep(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evictExpired()
		}
	}
}

// evictExpired は保持期間を過ぎた終了済みレコードを削除する
func (t *Tracker) evictExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, req := range t.requests {
		if req.Status.Terminal() && now.Sub(req.EndTime) > t.grace {
			delete(t.requests, id)
			delete(t.subs, id)
		}
	}
}

// Create は新しいリクエストレコードを登録する
func (t *Tracker) Create(req *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if req.StartTime.IsZero() {
		req.StartTime = time.Now()
	}
	req.Status = StatusRunning
	t.requests[req.ID] = req
}

// Snapshot は現在の状態のコピーを返す
// 終了状態のレコードは何度読んでも同一の内容になる
func (t *Tracker) Snapshot(id string) (Request, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	req, exists := t.requests[id]
	if !exists {
		return Request{}, ErrRequestNotFound
	}

	snap := *req
	snap.CurrentBatch = append([]string(nil), req.CurrentBatch...)
	snap.Captured = append([]string(nil), req.Captured...)
	snap.Failed = append([]string(nil), req.Failed...)

	// 経過時間を算出する。終了後は終了時点で固定
	end := time.Now()
	if req.Status.Terminal() && !req.EndTime.IsZero() {
		end = req.EndTime
	}
	snap.ElapsedSeconds = end.Sub(req.StartTime).Seconds()

	return snap, nil
}

// Counts は撮影済み・失敗カメラ数を返す
func (t *Tracker) Counts(id string) (captured, failed int, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	req, exists := t.requests[id]
	if !exists {
		return 0, 0, ErrRequestNotFound
	}
	return len(req.Captured), len(req.Failed), nil
}

// Subscribe はリクエストの進捗購読を開始する
//
// 返されるチャンネルには接続確認イベントに続いて状態遷移が配信され、
// リクエストの終了時にクローズされる。購読の解除は返却関数で行い、
// 解除してもオーケストレーションや他の購読者には影響しない。
func (t *Tracker) Subscribe(id string) (<-chan Event, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, exists := t.requests[id]
	if !exists {
		return nil, nil, ErrRequestNotFound
	}

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	sub.ch <- Event{Type: EventConnected}

	// 既に終了している場合は終了イベントを入れてクローズする
	if req.Status.Terminal() {
		sub.ch <- t.terminalEvent(req)
		close(sub.ch)
		sub.closed = true
		return sub.ch, func() {}, nil
	}

	t.subs[id] = append(t.subs[id], sub)

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		// 終了・削除済みのリクエストのエントリを復活させない
		if subs, ok := t.subs[id]; ok {
			remaining := subs[:0]
			for _, s := range subs {
				if s != sub {
					remaining = append(remaining, s)
				}
			}
			t.subs[id] = remaining
		}
		if !sub.closed {
			close(sub.ch)
			sub.closed = true
		}
	}

	return sub.ch, cancel, nil
}

// SetPhase は進行フェーズを更新する
func (t *Tracker) SetPhase(id string, phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	req.CurrentPhase = phase
	t.publishLocked(id, Event{Type: EventPhase, Phase: phase})
}

// SetBatch はバッチ開始を記録する
func (t *Tracker) SetBatch(id string, index, total int, cameraIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	req.CurrentPhase = BatchPhase(index, total)
	req.CurrentBatch = append([]string(nil), cameraIDs...)
	t.publishLocked(id, Event{
		Type:       EventBatch,
		Phase:      req.CurrentPhase,
		BatchIndex: index,
		BatchTotal: total,
		Cameras:    append([]string(nil), cameraIDs...),
	})
}

// ClearBatch は実行中バッチの表示を解除する
func (t *Tracker) ClearBatch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	req.CurrentBatch = nil
	req.CurrentPhase = PhaseNone
}

// RecordResult はカメラ1台の撮影結果を記録する
// 各カメラは撮影済み・失敗のどちらか一方にのみ、一度だけ記録される
func (t *Tracker) RecordResult(id, cameraID string, captured bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	// 二重記録を防ぐ
	for _, c := range req.Captured {
		if c == cameraID {
			return
		}
	}
	for _, c := range req.Failed {
		if c == cameraID {
			return
		}
	}

	result := "failed"
	if captured {
		req.Captured = append(req.Captured, cameraID)
		result = "captured"
	} else {
		req.Failed = append(req.Failed, cameraID)
	}

	t.publishLocked(id, Event{Type: EventCamera, CameraID: cameraID, Result: result})
}

// Complete はリクエストを正常終了へ遷移させる
func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	req.Status = StatusCompleted
	req.CurrentPhase = PhaseNone
	req.CurrentBatch = nil
	req.EndTime = time.Now()

	t.publishLocked(id, t.terminalEvent(req))
	t.closeSubsLocked(id)
}

// Fail はリクエストを失敗へ遷移させる
// 実行中のフェーズ表示はクリアされる
func (t *Tracker) Fail(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.writable(id)
	if !ok {
		return
	}

	req.Status = StatusFailed
	req.Error = reason
	req.CurrentPhase = PhaseNone
	req.CurrentBatch = nil
	req.EndTime = time.Now()

	t.publishLocked(id, t.terminalEvent(req))
	t.closeSubsLocked(id)
}

// writable は書き込み可能なレコードを返す（ロック済み前提）
// 未知のID、または終了済みのレコードへの書き込みは無視される
func (t *Tracker) writable(id string) (*Request, bool) {
	req, exists := t.requests[id]
	if !exists || req.Status.Terminal() {
		return nil, false
	}
	return req, true
}

// terminalEvent は終了イベントを組み立てる（ロック済み前提）
func (t *Tracker) terminalEvent(req *Request) Event {
	eventType := EventCompleted
	if req.Status == StatusFailed {
		eventType = EventFailed
	}
	return Event{
		Type:     eventType,
		Captured: len(req.Captured),
		Failed:   len(req.Failed),
		Error:    req.Error,
	}
}

// publishLocked は全購読者へイベントを配信する（ロック済み前提）
// バッファが埋まっている購読者へは配信せず読み飛ばす
func (t *Tracker) publishLocked(id string, ev Event) {
	for _, sub := range t.subs[id] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// closeSubsLocked は全購読者チャンネルをクローズする（ロック済み前提）
func (t *Tracker) closeSubsLocked(id string) {
	for _, sub := range t.subs[id] {
		if !sub.closed {
			close(sub.ch)
			sub.closed = true
		}
	}
	delete(t.subs, id)
}
