package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileRegistry はフラットJSONファイルを読むRegistryの実装
type fileRegistry struct {
	dataDir string
	hangars map[string]*Hangar
	mu      sync.RWMutex
}

// NewFileRegistry はデータディレクトリから格納庫定義を読み込んだRegistryを作成する
func NewFileRegistry(dataDir string) (Registry, error) {
	r := &fileRegistry{
		dataDir: dataDir,
		hangars: make(map[string]*Hangar),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Reload は格納庫定義ファイルを再読み込みする
func (r *fileRegistry) Reload() error {
	dir := filepath.Join(r.dataDir, "hangars")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// ディレクトリがない場合は空のインベントリとして扱う
			log.Printf("格納庫ディレクトリが存在しません: %s", dir)
			return nil
		}
		return fmt.Errorf("格納庫ディレクトリの読み取りに失敗: %w", err)
	}

	hangars := make(map[string]*Hangar)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		hangar, err := loadHangarFile(path)
		if err != nil {
			// 壊れた定義ファイルは読み飛ばす
			log.Printf("格納庫定義の読み込みに失敗: %s: %v", path, err)
			continue
		}

		hangars[hangar.ID] = hangar
	}

	r.mu.Lock()
	r.hangars = hangars
	r.mu.Unlock()

	return nil
}

// loadHangarFile は格納庫定義ファイルを1件読み込む
func loadHangarFile(path string) (*Hangar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var hangar Hangar
	if err := json.Unmarshal(data, &hangar); err != nil {
		return nil, fmt.Errorf("JSONの解析に失敗: %w", err)
	}

	if hangar.ID == "" {
		return nil, fmt.Errorf("格納庫IDが設定されていません")
	}

	// カメラリストがない場合は標準構成を適用
	if len(hangar.Cameras) == 0 {
		hangar.Cameras = DefaultCameras()
	}

	return &hangar, nil
}

// GetHangar は指定されたIDの格納庫を取得する
func (r *fileRegistry) GetHangar(id string) (*Hangar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hangar, exists := r.hangars[id]
	if !exists {
		return nil, false
	}

	// コピーを返す
	result := *hangar
	result.Cameras = append([]Camera(nil), hangar.Cameras...)
	return &result, true
}

// ListHangars は全格納庫の一覧を取得する
func (r *fileRegistry) ListHangars() []Hangar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hangars := make([]Hangar, 0, len(r.hangars))
	for _, hangar := range r.hangars {
		hangars = append(hangars, *hangar)
	}

	// ID順に安定して返す
	sort.Slice(hangars, func(i, j int) bool {
		return hangars[i].ID < hangars[j].ID
	})

	return hangars
}

// Cameras は格納庫の順序付きカメラリストを取得する
func (r *fileRegistry) Cameras(hangarID string) ([]Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hangar, exists := r.hangars[hangarID]
	if !exists {
		return nil, false
	}

	return append([]Camera(nil), hangar.Cameras...), true
}

// MockRegistry はテスト用のモックレジストリ実装
type MockRegistry struct {
	hangars map[string]*Hangar
	mu      sync.RWMutex
}

// NewMockRegistry は新しいMockRegistryを作成する
func NewMockRegistry(hangars ...Hangar) *MockRegistry {
	m := &MockRegistry{
		hangars: make(map[string]*Hangar),
	}
	for i := range hangars {
		h := hangars[i]
		if len(h.Cameras) == 0 {
			h.Cameras = DefaultCameras()
		}
		m.hangars[h.ID] = &h
	}
	return m
}

// AddHangar は格納庫を追加する
func (m *MockRegistry) AddHangar(hangar Hangar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(hangar.Cameras) == 0 {
		hangar.Cameras = DefaultCameras()
	}
	m.hangars[hangar.ID] = &hangar
}

// GetHangar は指定されたIDの格納庫を取得する
func (m *MockRegistry) GetHangar(id string) (*Hangar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hangar, exists := m.hangars[id]
	if !exists {
		return nil, false
	}
	result := *hangar
	return &result, true
}

// ListHangars は全格納庫の一覧を取得する
func (m *MockRegistry) ListHangars() []Hangar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hangars := make([]Hangar, 0, len(m.hangars))
	for _, hangar := range m.hangars {
		hangars = append(hangars, *hangar)
	}
	sort.Slice(hangars, func(i, j int) bool {
		return hangars[i].ID < hangars[j].ID
	})
	return hangars
}

// Cameras は格納庫の順序付きカメラリストを取得する
func (m *MockRegistry) Cameras(hangarID string) ([]Camera, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hangar, exists := m.hangars[hangarID]
	if !exists {
		return nil, false
	}
	return append([]Camera(nil), hangar.Cameras...), true
}
