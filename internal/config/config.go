package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
	Capture  CaptureConfig
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string // リッスンするホスト
	Port int    // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration // 読み込みタイムアウト
	WriteTimeout time.Duration // 書き込みタイムアウト
}

// RegistryConfig は格納庫レジストリの設定
type RegistryConfig struct {
	// 格納庫定義ファイル（JSON）を置くディレクトリ
	DataDir string
}

// CaptureConfig は撮影オーケストレーションのポリシー設定
//
// タイムアウト値と失敗判定のしきい値は運用上の経験値であり、
// 理論的な根拠はない。変更する場合はドメイン担当者に確認すること。
type CaptureConfig struct {
	ScriptPath string // カメラごとの取得スクリプトのパス
	SessionDir string // セッションフォルダを作成するディレクトリ

	BatchSize int // 1バッチあたりの同時撮影カメラ数
	BasePort  int // バッチ内のトンネル用ベースポート

	ParallelTimeout   time.Duration // 並列実行時のカメラ単位タイムアウト
	SequentialTimeout time.Duration // 逐次実行時のカメラ単位タイムアウト
	GlobalTimeout     time.Duration // リクエスト全体のタイムアウト
	InterBatchDelay   time.Duration // バッチ間の待機時間

	MaxDroneNameLength int           // ドローン名の最大長
	RetentionGrace     time.Duration // 終了後のリクエスト保持期間
}

// fileConfig はYAMLファイルの構造
// 時間はすべて秒単位の整数で指定する
type fileConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Registry struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"registry"`
	Capture struct {
		ScriptPath           string `yaml:"script_path"`
		SessionDir           string `yaml:"session_dir"`
		BatchSize            int    `yaml:"batch_size"`
		BasePort             int    `yaml:"base_port"`
		ParallelTimeoutSec   int    `yaml:"parallel_timeout_sec"`
		SequentialTimeoutSec int    `yaml:"sequential_timeout_sec"`
		GlobalTimeoutSec     int    `yaml:"global_timeout_sec"`
		InterBatchDelaySec   int    `yaml:"inter_batch_delay_sec"`
		MaxDroneNameLength   int    `yaml:"max_drone_name_length"`
		RetentionGraceSec    int    `yaml:"retention_grace_sec"`
	} `yaml:"capture"`
}

// Load は設定を読み込む
// デフォルト値 → YAMLファイル（パスが空なら省略） → 環境変数 の順に重ねる
func Load(path string) (*Config, error) {
	// デフォルト設定を作成
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // SSE配信用にタイムアウト無効化
		},
		Registry: RegistryConfig{
			DataDir: "data",
		},
		Capture: CaptureConfig{
			ScriptPath:         "scripts/fetch_camera.sh",
			SessionDir:         "sessions",
			BatchSize:          4,
			BasePort:           18500,
			ParallelTimeout:    90 * time.Second,
			SequentialTimeout:  120 * time.Second,
			GlobalTimeout:      5 * time.Minute,
			InterBatchDelay:    2 * time.Second,
			MaxDroneNameLength: 64,
			RetentionGrace:     10 * time.Minute,
		},
	}

	// YAMLファイルを読み込む
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	// 環境変数で上書き
	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyFile はYAMLファイルの値を設定に反映する
func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var fc fileConfig
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return err
	}

	if fc.Server.Host != "" {
		c.Server.Host = fc.Server.Host
	}
	if fc.Server.Port != 0 {
		c.Server.Port = fc.Server.Port
	}
	if fc.Registry.DataDir != "" {
		c.Registry.DataDir = fc.Registry.DataDir
	}
	if fc.Capture.ScriptPath != "" {
		c.Capture.ScriptPath = fc.Capture.ScriptPath
	}
	if fc.Capture.SessionDir != "" {
		c.Capture.SessionDir = fc.Capture.SessionDir
	}
	if fc.Capture.BatchSize != 0 {
		c.Capture.BatchSize = fc.Capture.BatchSize
	}
	if fc.Capture.BasePort != 0 {
		c.Capture.BasePort = fc.Capture.BasePort
	}
	if fc.Capture.ParallelTimeoutSec != 0 {
		c.Capture.ParallelTimeout = time.Duration(fc.Capture.ParallelTimeoutSec) * time.Second
	}
	if fc.Capture.SequentialTimeoutSec != 0 {
		c.Capture.SequentialTimeout = time.Duration(fc.Capture.SequentialTimeoutSec) * time.Second
	}
	if fc.Capture.GlobalTimeoutSec != 0 {
		c.Capture.GlobalTimeout = time.Duration(fc.Capture.GlobalTimeoutSec) * time.Second
	}
	if fc.Capture.InterBatchDelaySec != 0 {
		c.Capture.InterBatchDelay = time.Duration(fc.Capture.InterBatchDelaySec) * time.Second
	}
	if fc.Capture.MaxDroneNameLength != 0 {
		c.Capture.MaxDroneNameLength = fc.Capture.MaxDroneNameLength
	}
	if fc.Capture.RetentionGraceSec != 0 {
		c.Capture.RetentionGrace = time.Duration(fc.Capture.RetentionGraceSec) * time.Second
	}

	return nil
}

// applyEnv は環境変数の値を設定に反映する
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Registry.DataDir = getEnvOrDefault("TAKANOME_DATA_DIR", c.Registry.DataDir)
	c.Capture.ScriptPath = getEnvOrDefault("TAKANOME_CAPTURE_SCRIPT", c.Capture.ScriptPath)
	c.Capture.SessionDir = getEnvOrDefault("TAKANOME_SESSION_DIR", c.Capture.SessionDir)
	c.Capture.BatchSize = getEnvAsIntOrDefault("TAKANOME_BATCH_SIZE", c.Capture.BatchSize)
	c.Capture.BasePort = getEnvAsIntOrDefault("TAKANOME_BASE_PORT", c.Capture.BasePort)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// レジストリ設定の検証
	if c.Registry.DataDir == "" {
		return fmt.Errorf("データディレクトリが設定されていません")
	}

	// 撮影設定の検証
	if c.Capture.ScriptPath == "" {
		return fmt.Errorf("取得スクリプトのパスが設定されていません")
	}
	if c.Capture.SessionDir == "" {
		return fmt.Errorf("セッションディレクトリが設定されていません")
	}
	if c.Capture.BatchSize < 1 {
		return fmt.Errorf("無効なバッチサイズ: %d", c.Capture.BatchSize)
	}
	if c.Capture.BasePort < 1024 || c.Capture.BasePort+c.Capture.BatchSize-1 > 65535 {
		return fmt.Errorf("無効なベースポート: %d", c.Capture.BasePort)
	}
	if c.Capture.ParallelTimeout <= 0 || c.Capture.SequentialTimeout <= 0 {
		return fmt.Errorf("カメラ単位タイムアウトが設定されていません")
	}
	if c.Capture.GlobalTimeout <= 0 {
		return fmt.Errorf("全体タイムアウトが設定されていません")
	}
	if c.Capture.InterBatchDelay < 0 {
		return fmt.Errorf("バッチ間待機時間が負の値です")
	}
	if c.Capture.MaxDroneNameLength < 1 {
		return fmt.Errorf("無効なドローン名の最大長: %d", c.Capture.MaxDroneNameLength)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
