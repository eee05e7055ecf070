package capture

import "strings"

// phaseMarkers は取得スクリプトの出力行とフェーズの対応表
// 先に一致したものが採用される
var phaseMarkers = []struct {
	substr string
	phase  Phase
}{
	{"establishing tunnel", PhaseConnecting},
	{"connecting", PhaseConnecting},
	{"autofocus", PhaseAutofocus},
	{"capturing", PhaseCapture},
	{"downloading", PhaseCapture},
}

// PhaseFromLine は取得スクリプトの出力行からフェーズを推定する
//
// あくまでベストエフォートの進捗表示用であり、正確性は保証しない。
// どのマーカーにも一致しない行は黙って読み飛ばす。
// 推定の失敗や取りこぼしが撮影の成否判定に影響することはない。
func PhaseFromLine(line string) (Phase, bool) {
	lower := strings.ToLower(line)
	for _, m := range phaseMarkers {
		if strings.Contains(lower, m.substr) {
			return m.phase, true
		}
	}
	return PhaseNone, false
}
