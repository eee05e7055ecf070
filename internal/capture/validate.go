package capture

import (
	"fmt"
	"regexp"
)

// identifierPattern は識別子として許可する文字（英数字・アンダースコア・ハイフン）
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError は投入パラメータの検証エラー
// 投入者に同期的に返され、オーケストレーションは開始されない
type ValidationError struct {
	Field   string // 問題のあったフィールド
	Message string // 日本語の説明
}

// Error はエラーメッセージを返す
func (e *ValidationError) Error() string {
	return fmt.Sprintf("検証エラー (%s): %s", e.Field, e.Message)
}

// ValidateSubmission は撮影リクエストの投入パラメータを検証する
func ValidateSubmission(req SubmitRequest, maxDroneNameLength int) error {
	if req.HangarID == "" {
		return &ValidationError{Field: "hangar_id", Message: "格納庫IDが指定されていません"}
	}
	if !identifierPattern.MatchString(req.HangarID) {
		return &ValidationError{Field: "hangar_id", Message: "格納庫IDに使用できない文字が含まれています"}
	}

	if req.DroneName == "" {
		return &ValidationError{Field: "drone_name", Message: "ドローン名が指定されていません"}
	}
	if len(req.DroneName) > maxDroneNameLength {
		return &ValidationError{
			Field:   "drone_name",
			Message: fmt.Sprintf("ドローン名が長すぎます（最大%d文字）", maxDroneNameLength),
		}
	}
	if !identifierPattern.MatchString(req.DroneName) {
		return &ValidationError{Field: "drone_name", Message: "ドローン名は英数字・アンダースコア・ハイフンのみ使用できます"}
	}

	if req.InspectionType != "" && !identifierPattern.MatchString(req.InspectionType) {
		return &ValidationError{Field: "inspection_type", Message: "点検種別に使用できない文字が含まれています"}
	}

	if req.SessionName != "" && !identifierPattern.MatchString(req.SessionName) {
		return &ValidationError{Field: "session_name", Message: "セッション名に使用できない文字が含まれています"}
	}

	return nil
}
