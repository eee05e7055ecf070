package capture

// EvaluateOutcome は全バッチ完了後の成否を判定する
//
// 1台も撮影できなかった場合、または失敗が全体の半数を超えた場合は失敗、
// それ以外は正常終了とする。しきい値は運用上の経験値であり、
// 変更する場合はドメイン担当者に確認すること。
func EvaluateOutcome(captured, failed, total int) Status {
	if captured == 0 || failed > total/2 {
		return StatusFailed
	}
	return StatusCompleted
}
