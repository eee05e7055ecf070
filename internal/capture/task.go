package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// TaskSpec は1台のカメラ撮影の実行パラメータ
type TaskSpec struct {
	HangarHost    string        // 格納庫のリモートホスト
	DroneName     string        // 対象ドローン名
	CameraID      string        // カメラ識別子
	CameraIP      string        // カメラのIPアドレス
	SessionFolder string        // 画像の保存先
	Port          int           // トンネル用ローカルポート
	Timeout       time.Duration // このカメラの実行時間上限

	// OnPhase は出力から推定したフェーズの通知先（省略可）
	OnPhase func(Phase)
}

// Capturer はカメラごとの取得処理を実行するインターフェース
type Capturer interface {
	// Preflight は取得処理が実行可能かを事前確認する
	Preflight() error

	// Capture は1台のカメラ撮影を実行する
	// 成功時はnil、タイムアウト・非ゼロ終了はエラーを返す
	Capture(ctx context.Context, spec TaskSpec) error
}

// pipeCloseDelay はタイムアウト後にパイプを強制クローズするまでの猶予
// スクリプトが起動した孫プロセス（sshトンネル等）がパイプを
// 握ったままでも、この猶予を過ぎれば出力の監視は打ち切られる
const pipeCloseDelay = 2 * time.Second

// scriptCapturer は外部取得スクリプトを起動するCapturerの実装
type scriptCapturer struct {
	scriptPath string
}

// NewScriptCapturer は新しいscriptCapturerを作成する
func NewScriptCapturer(scriptPath string) Capturer {
	return &scriptCapturer{scriptPath: scriptPath}
}

// Preflight は取得スクリプトの存在と実行権限を確認する
func (c *scriptCapturer) Preflight() error {
	info, err := os.Stat(c.scriptPath)
	if err != nil {
		return fmt.Errorf("取得スクリプトが見つかりません: %s: %w", c.scriptPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("取得スクリプトがディレクトリです: %s", c.scriptPath)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("取得スクリプトに実行権限がありません: %s", c.scriptPath)
	}
	return nil
}

// Capture は取得スクリプトをサブプロセスとして実行する
//
// 引数は位置引数で渡す: ホスト、ドローン名、カメラID、カメラIP、
// セッションフォルダ、ポート。出力は行単位で読み取り、
// フェーズマーカーに一致した行をOnPhaseへ通知する。
// タイムアウト時はプロセスを強制終了して失敗として扱う。
func (c *scriptCapturer) Capture(ctx context.Context, spec TaskSpec) error {
	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.scriptPath,
		spec.HangarHost,
		spec.DroneName,
		spec.CameraID,
		spec.CameraIP,
		spec.SessionFolder,
		strconv.Itoa(spec.Port),
	)

	// 直接の子を強制終了しても、孫プロセスがstdout/stderrの
	// 書き込み側を開いたままだと読み取りがEOFに達しない。
	// タイムアウト後は猶予を置いてパイプをクローズさせ、
	// 監視ゴルーチンとWaitのブロックを解除する
	cmd.WaitDelay = pipeCloseDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("取得スクリプトの起動に失敗: %w", err)
	}

	// 出力ストリームを行単位で監視する
	var wg sync.WaitGroup
	wg.Add(2)
	go c.scanLines(stdout, spec.OnPhase, &wg)
	go c.scanLines(stderr, spec.OnPhase, &wg)

	// Waitの前にパイプの読み取りを終える
	wg.Wait()
	err = cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("カメラ %s の撮影がタイムアウトしました (%s)", spec.CameraID, spec.Timeout)
	}
	if err != nil {
		return fmt.Errorf("カメラ %s の取得スクリプトが失敗しました: %w", spec.CameraID, err)
	}

	return nil
}

// scanLines は出力行を読み取り、フェーズマーカーを通知する
func (c *scriptCapturer) scanLines(r io.Reader, onPhase func(Phase), wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		phase, ok := PhaseFromLine(scanner.Text())
		if ok && onPhase != nil {
			onPhase(phase)
		}
	}
	// 読み取りエラーはプロセス終了時に発生するため無視する
}

// MockCapturer はテスト用のモックCapturer実装
type MockCapturer struct {
	mu           sync.Mutex
	preflightErr error
	results      map[string]error // カメラID → 結果
	panics       map[string]bool  // カメラID → Captureでパニックさせる
	delay        time.Duration
	phases       []Phase // Captureごとに通知するフェーズ列
	calls        []TaskSpec
	running      int
	maxRunning   int
}

// NewMockCapturer は新しいMockCapturerを作成する
func NewMockCapturer() *MockCapturer {
	return &MockCapturer{
		results: make(map[string]error),
		panics:  make(map[string]bool),
	}
}

// SetPreflightError はテスト用にPreflight失敗を設定する
func (m *MockCapturer) SetPreflightError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preflightErr = err
}

// SetResult はカメラごとの撮影結果を設定する（nilで成功）
func (m *MockCapturer) SetResult(cameraID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[cameraID] = err
}

// SetPanic は指定カメラのCaptureでパニックを発生させる
func (m *MockCapturer) SetPanic(cameraID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[cameraID] = true
}

// SetDelay は撮影1回あたりの擬似実行時間を設定する
func (m *MockCapturer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetPhases はCaptureごとに通知するフェーズ列を設定する
func (m *MockCapturer) SetPhases(phases ...Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = phases
}

// Preflight は設定された事前確認結果を返す
func (m *MockCapturer) Preflight() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preflightErr
}

// Capture はモック撮影を実行する
func (m *MockCapturer) Capture(ctx context.Context, spec TaskSpec) error {
	m.mu.Lock()
	m.calls = append(m.calls, spec)
	m.running++
	if m.running > m.maxRunning {
		m.maxRunning = m.running
	}
	delay := m.delay
	phases := m.phases
	shouldPanic := m.panics[spec.CameraID]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	if shouldPanic {
		panic(fmt.Sprintf("モック撮影のパニック: %s", spec.CameraID))
	}

	for _, phase := range phases {
		if spec.OnPhase != nil {
			spec.OnPhase(phase)
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[spec.CameraID]
}

// Calls は実行されたTaskSpecの一覧を返す
func (m *MockCapturer) Calls() []TaskSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskSpec(nil), m.calls...)
}

// MaxConcurrent は観測された最大同時実行数を返す
func (m *MockCapturer) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRunning
}
