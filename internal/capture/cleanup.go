package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// cleanupTimeout はリモート後始末コマンドの実行時間上限
const cleanupTimeout = 15 * time.Second

// RemoteRunner はリモートホスト上でコマンドを1つ実行するインターフェース
type RemoteRunner interface {
	Run(ctx context.Context, host, command string) error
}

// sshRunner はsshサブプロセス経由のRemoteRunnerの実装
type sshRunner struct{}

// NewSSHRunner は新しいsshRunnerを作成する
func NewSSHRunner() RemoteRunner {
	return &sshRunner{}
}

// Run はsshでリモートコマンドを実行する
func (r *sshRunner) Run(ctx context.Context, host, command string) error {
	cmd := exec.CommandContext(ctx, "ssh",
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=5",
		host, command,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("リモートコマンドの実行に失敗: %w (出力: %s)", err, string(output))
	}

	return nil
}

// CleanupManager はセッション終了後のリモートポート後始末を行う
//
// バッチ処理の結果に関わらずリクエストごとに一度だけ実行され、
// セッションの予約ポート範囲に残ったトンネルプロセスを終了させる。
// 失敗してもログに残すだけで、リクエストの成否には影響しない。
type CleanupManager struct {
	runner RemoteRunner
}

// NewCleanupManager は新しいCleanupManagerを作成する
func NewCleanupManager(runner RemoteRunner) *CleanupManager {
	return &CleanupManager{runner: runner}
}

// ReleasePorts は予約ポート範囲 [basePort, basePort+count-1] に
// 残ったプロセスの終了をリモートホストへ指示する
func (c *CleanupManager) ReleasePorts(ctx context.Context, host string, basePort, count int) error {
	runCtx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	targets := make([]string, count)
	for i := 0; i < count; i++ {
		targets[i] = fmt.Sprintf("%d/tcp", basePort+i)
	}

	// 対象ポートにプロセスが残っていなくても成功扱いにする
	command := fmt.Sprintf("fuser -k %s || true", strings.Join(targets, " "))

	return c.runner.Run(runCtx, host, command)
}

// MockRemoteRunner はテスト用のモックRemoteRunner実装
type MockRemoteRunner struct {
	mu       sync.Mutex
	err      error
	hosts    []string
	commands []string
}

// NewMockRemoteRunner は新しいMockRemoteRunnerを作成する
func NewMockRemoteRunner() *MockRemoteRunner {
	return &MockRemoteRunner{}
}

// SetError はテスト用に実行失敗を設定する
func (m *MockRemoteRunner) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Run は呼び出しを記録して設定された結果を返す
func (m *MockRemoteRunner) Run(_ context.Context, host, command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = append(m.hosts, host)
	m.commands = append(m.commands, command)
	return m.err
}

// CallCount は実行された回数を返す
func (m *MockRemoteRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

// Commands は実行されたコマンドの一覧を返す
func (m *MockRemoteRunner) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}
