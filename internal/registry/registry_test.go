package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeHangarFile はテスト用の格納庫定義ファイルを作成する
func writeHangarFile(t *testing.T, dir, name, content string) {
	t.Helper()

	hangarDir := filepath.Join(dir, "hangars")
	if err := os.MkdirAll(hangarDir, 0755); err != nil {
		t.Fatalf("ディレクトリの作成に失敗しました: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hangarDir, name), []byte(content), 0644); err != nil {
		t.Fatalf("ファイルの作成に失敗しました: %v", err)
	}
}

// TestFileRegistryLoad は格納庫定義ファイルの読み込みをテストする
func TestFileRegistryLoad(t *testing.T) {
	dir := t.TempDir()
	writeHangarFile(t, dir, "hangar_a.json", `{
		"id": "hangar_a",
		"name": "第一格納庫",
		"ssh_host": "hangar-a.example.com",
		"assigned_drone": "drone_1",
		"lights": {"enabled": true, "url": "http://lights.local/on", "settle_seconds": 4}
	}`)
	writeHangarFile(t, dir, "hangar_b.json", `{
		"id": "hangar_b",
		"ssh_host": "hangar-b.example.com",
		"cameras": [
			{"id": "cam_north", "ip_address": "10.0.0.1"},
			{"id": "cam_south", "ip_address": "10.0.0.2"}
		]
	}`)

	reg, err := NewFileRegistry(dir)
	if err != nil {
		t.Fatalf("レジストリの作成に失敗しました: %v", err)
	}

	// hangar_a: カメラリストなし → 標準8台構成
	hangarA, found := reg.GetHangar("hangar_a")
	if !found {
		t.Fatal("hangar_a が見つかりません")
	}
	if hangarA.Name != "第一格納庫" {
		t.Errorf("格納庫名が一致しません: got %s", hangarA.Name)
	}
	if hangarA.AssignedDrone != "drone_1" {
		t.Errorf("割当ドローンが一致しません: got %s", hangarA.AssignedDrone)
	}
	if len(hangarA.Cameras) != 8 {
		t.Errorf("標準カメラ構成が適用されていません: got %d台", len(hangarA.Cameras))
	}

	// hangar_b: 独自のカメラリスト
	cameras, found := reg.Cameras("hangar_b")
	if !found {
		t.Fatal("hangar_b が見つかりません")
	}
	if len(cameras) != 2 {
		t.Fatalf("カメラ数が一致しません: got %d, want 2", len(cameras))
	}
	if cameras[0].ID != "cam_north" || cameras[1].ID != "cam_south" {
		t.Errorf("カメラの順序が保持されていません: %v", cameras)
	}

	// 一覧はID順
	hangars := reg.ListHangars()
	if len(hangars) != 2 {
		t.Fatalf("格納庫数が一致しません: got %d, want 2", len(hangars))
	}
	if hangars[0].ID != "hangar_a" || hangars[1].ID != "hangar_b" {
		t.Errorf("格納庫一覧がID順になっていません: %v", hangars)
	}
}

// TestFileRegistryBrokenFile は壊れた定義ファイルの扱いをテストする
func TestFileRegistryBrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeHangarFile(t, dir, "good.json", `{"id": "hangar_a"}`)
	writeHangarFile(t, dir, "broken.json", `{invalid json`)
	writeHangarFile(t, dir, "no_id.json", `{"name": "IDなし"}`)
	writeHangarFile(t, dir, "ignored.txt", `not json`)

	reg, err := NewFileRegistry(dir)
	if err != nil {
		t.Fatalf("レジストリの作成に失敗しました: %v", err)
	}

	// 壊れたファイルは読み飛ばされ、正常なものだけ残る
	hangars := reg.ListHangars()
	if len(hangars) != 1 {
		t.Fatalf("格納庫数が一致しません: got %d, want 1", len(hangars))
	}
	if hangars[0].ID != "hangar_a" {
		t.Errorf("予期しない格納庫: %s", hangars[0].ID)
	}
}

// TestFileRegistryMissingDir はデータディレクトリがない場合をテストする
func TestFileRegistryMissingDir(t *testing.T) {
	reg, err := NewFileRegistry(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("空のインベントリとして扱われるべきです: %v", err)
	}

	if len(reg.ListHangars()) != 0 {
		t.Error("格納庫が0件であるべきです")
	}
	if _, found := reg.GetHangar("any"); found {
		t.Error("存在しない格納庫が見つかってしまいました")
	}
}

// TestGetHangarReturnsCopy は取得結果がコピーであることをテストする
func TestGetHangarReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	writeHangarFile(t, dir, "hangar_a.json", `{"id": "hangar_a"}`)

	reg, err := NewFileRegistry(dir)
	if err != nil {
		t.Fatalf("レジストリの作成に失敗しました: %v", err)
	}

	hangar, _ := reg.GetHangar("hangar_a")
	hangar.Name = "書き換え"
	hangar.Cameras[0].ID = "tampered"

	fresh, _ := reg.GetHangar("hangar_a")
	if fresh.Name == "書き換え" {
		t.Error("取得結果の変更がレジストリに反映されてしまいました")
	}
	if fresh.Cameras[0].ID == "tampered" {
		t.Error("カメラリストの変更がレジストリに反映されてしまいました")
	}
}

// TestLightsSettleDuration は安定待ち時間の丸めをテストする
func TestLightsSettleDuration(t *testing.T) {
	testCases := []struct {
		name     string
		seconds  int
		expected time.Duration
	}{
		{"未設定はデフォルト5秒", 0, 5 * time.Second},
		{"範囲内はそのまま", 4, 4 * time.Second},
		{"下限3秒に丸める", 1, 3 * time.Second},
		{"上限9秒に丸める", 30, 9 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lights := LightsConfig{SettleSeconds: tc.seconds}
			if got := lights.SettleDuration(); got != tc.expected {
				t.Errorf("安定待ち時間が一致しません: got %s, want %s", got, tc.expected)
			}
		})
	}
}

// TestDefaultCameras は標準カメラ構成をテストする
func TestDefaultCameras(t *testing.T) {
	cameras := DefaultCameras()

	if len(cameras) != 8 {
		t.Fatalf("標準構成は8台であるべきです: got %d", len(cameras))
	}
	if cameras[0].ID != "camera_1" || cameras[7].ID != "camera_8" {
		t.Errorf("カメラIDが想定と異なります: %s .. %s", cameras[0].ID, cameras[7].ID)
	}
	if cameras[0].IPAddress != "192.168.10.101" {
		t.Errorf("カメラIPが想定と異なります: %s", cameras[0].IPAddress)
	}
}
