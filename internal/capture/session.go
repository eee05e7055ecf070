package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionTimeFormat はセッションフォルダ名に使うタイムスタンプ書式
// 固定幅でソート可能な形にする
const sessionTimeFormat = "2006-01-02_15-04-05"

// NewSessionFolder はセッションフォルダを割り当てて作成する
//
// フォルダ名は <格納庫ID>_<点検種別>_<ドローン名>_<タイムスタンプ> で構成し、
// sessionName が指定された場合はそちらを優先する。
// 返されるパスはリクエストの生存期間を通じて不変で、
// 画像の保存先・サブプロセスの出力先・後始末の対象を決める座標系になる。
func NewSessionFolder(baseDir, hangarID, inspectionType, droneName, sessionName string, now time.Time) (string, error) {
	name := sessionName
	if name == "" {
		token := now.Format(sessionTimeFormat)
		name = fmt.Sprintf("%s_%s_%s_%s", hangarID, inspectionType, droneName, token)
	}

	folder := filepath.Join(baseDir, name)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("セッションフォルダの作成に失敗: %w", err)
	}

	return folder, nil
}
