package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"takanome/internal/config"
	"takanome/internal/registry"
)

// Partition はカメラリストをバッチに分割する
//
// バッチは登録順のまま連続した切片になり、
// バッチ数は ceil(カメラ数 / バッチサイズ) になる。
func Partition(cameras []registry.Camera, batchSize int) [][]registry.Camera {
	if batchSize < 1 || len(cameras) == 0 {
		return nil
	}

	batches := make([][]registry.Camera, 0, (len(cameras)+batchSize-1)/batchSize)
	for start := 0; start < len(cameras); start += batchSize {
		end := start + batchSize
		if end > len(cameras) {
			end = len(cameras)
		}
		batches = append(batches, cameras[start:end])
	}

	return batches
}

// BatchScheduler はカメラ群をバッチ単位で逐次駆動する
type BatchScheduler struct {
	cfg      config.CaptureConfig
	capturer Capturer
	tracker  *Tracker
}

// NewBatchScheduler は新しいBatchSchedulerを作成する
func NewBatchScheduler(cfg config.CaptureConfig, capturer Capturer, tracker *Tracker) *BatchScheduler {
	return &BatchScheduler{
		cfg:      cfg,
		capturer: capturer,
		tracker:  tracker,
	}
}

// Run は全バッチを順番に実行する
//
// バッチ内のカメラは並行に撮影され、同時実行数はバッチサイズを超えない。
// 1台の失敗は同一バッチの他カメラにも後続バッチにも影響しない。
// 各バッチのポートは貸与された範囲から位置に応じて割り当てられ、
// バッチ終了時に必ず返却される。
func (s *BatchScheduler) Run(ctx context.Context, requestID string, hangar *registry.Hangar, droneName, sessionFolder string, cameras []registry.Camera) {
	batches := Partition(cameras, s.cfg.BatchSize)
	total := len(batches)
	ports := NewPortAllocator(s.cfg.BasePort, s.cfg.BatchSize)

	// バッチサイズ1のときは逐次実行扱いで長めのタイムアウトを使う
	timeout := s.cfg.ParallelTimeout
	if s.cfg.BatchSize <= 1 {
		timeout = s.cfg.SequentialTimeout
	}

	for i, batch := range batches {
		ids := make([]string, len(batch))
		for j, cam := range batch {
			ids[j] = cam.ID
		}
		s.tracker.SetBatch(requestID, i+1, total, ids)

		batchPorts, release, err := ports.Acquire(len(batch))
		if err != nil {
			// 逐次実行の不変条件が破れている。このバッチは全台失敗とする
			log.Printf("ポート貸与に失敗: %v", err)
			for _, cam := range batch {
				s.tracker.RecordResult(requestID, cam.ID, false)
			}
			continue
		}

		s.runBatch(ctx, requestID, hangar, droneName, sessionFolder, batch, batchPorts, timeout)
		release()

		s.tracker.ClearBatch(requestID)

		// 最後のバッチ以外はリモート側のソケット解放を待つ
		if i < total-1 {
			select {
			case <-time.After(s.cfg.InterBatchDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// runBatch は1バッチ分のカメラを並行に撮影し、全台の完了を待つ
func (s *BatchScheduler) runBatch(ctx context.Context, requestID string, hangar *registry.Hangar, droneName, sessionFolder string, batch []registry.Camera, ports []int, timeout time.Duration) {
	var wg sync.WaitGroup

	for pos, cam := range batch {
		wg.Add(1)
		go func(cam registry.Camera, port int) {
			defer wg.Done()

			// ワーカーの予期しないエラーをそのカメラの失敗に留める
			defer func() {
				if r := recover(); r != nil {
					log.Printf("カメラ %s の撮影中に予期しないエラー: %v", cam.ID, r)
					s.tracker.RecordResult(requestID, cam.ID, false)
				}
			}()

			spec := TaskSpec{
				HangarHost:    hangar.SSHHost,
				DroneName:     droneName,
				CameraID:      cam.ID,
				CameraIP:      cam.IPAddress,
				SessionFolder: sessionFolder,
				Port:          port,
				Timeout:       timeout,
				OnPhase: func(phase Phase) {
					s.tracker.SetPhase(requestID, phase)
				},
			}

			err := s.capturer.Capture(ctx, spec)
			if err != nil {
				log.Printf("カメラ %s の撮影に失敗: %v", cam.ID, err)
			}
			s.tracker.RecordResult(requestID, cam.ID, err == nil)
		}(cam, ports[pos])
	}

	wg.Wait()
}
