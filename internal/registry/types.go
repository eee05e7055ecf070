package registry

import (
	"fmt"
	"time"
)

// Camera は格納庫に固定設置されたカメラの情報
type Camera struct {
	ID        string `json:"id"`         // カメラの識別子
	IPAddress string `json:"ip_address"` // 格納庫内ネットワークでのIPアドレス
}

// LightsConfig は格納庫の照明制御設定
type LightsConfig struct {
	Enabled       bool   `json:"enabled"`        // 照明制御の有効/無効
	URL           string `json:"url"`            // 照明制御エンドポイント
	Username      string `json:"username"`       // Basic認証ユーザー名
	Password      string `json:"password"`       // Basic認証パスワード
	SettleSeconds int    `json:"settle_seconds"` // 点灯後の安定待ち時間（秒）
}

// SettleDuration は点灯後の安定待ち時間を返す
// 設定値は3〜9秒の範囲に丸め、未設定の場合は5秒とする
func (l LightsConfig) SettleDuration() time.Duration {
	sec := l.SettleSeconds
	if sec == 0 {
		sec = 5
	}
	if sec < 3 {
		sec = 3
	}
	if sec > 9 {
		sec = 9
	}
	return time.Duration(sec) * time.Second
}

// Hangar は格納庫の接続情報とカメラ構成
type Hangar struct {
	ID            string       `json:"id"`             // 格納庫の識別子
	Name          string       `json:"name"`           // 表示名
	SSHHost       string       `json:"ssh_host"`       // リモート管理ホスト
	AssignedDrone string       `json:"assigned_drone"` // 割り当てられたドローン名
	Lights        LightsConfig `json:"lights"`         // 照明制御設定
	Cameras       []Camera     `json:"cameras,omitempty"`
}

// Registry は格納庫インベントリへの読み取りアクセスを提供するインターフェース
type Registry interface {
	// GetHangar は指定されたIDの格納庫を取得する
	GetHangar(id string) (*Hangar, bool)

	// ListHangars は全格納庫の一覧を取得する
	ListHangars() []Hangar

	// Cameras は格納庫の順序付きカメラリストを取得する
	Cameras(hangarID string) ([]Camera, bool)
}

// DefaultCameras は標準の8台カメラ構成を返す
// カメラリストを持たない格納庫定義にはこの構成が適用される
func DefaultCameras() []Camera {
	cameras := make([]Camera, 0, 8)
	for i := 1; i <= 8; i++ {
		cameras = append(cameras, Camera{
			ID:        fmt.Sprintf("camera_%d", i),
			IPAddress: fmt.Sprintf("192.168.10.%d", 100+i),
		})
	}
	return cameras
}
