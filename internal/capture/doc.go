// Package capture ドローン格納庫の撮影オーケストレーションを担う
//
// # 責務
// - 撮影リクエストの検証とセッションフォルダの割り当て
// - カメラ群のバッチ分割と同時実行数の制限
// - カメラごとの取得サブプロセスの起動・出力監視・タイムアウト制御
// - 照明制御とリモートポート後始末（いずれもベストエフォート）
// - リクエスト進捗の追跡と購読者への配信
// - 全バッチ完了後の成否判定
//
// # 仕様
// - バッチは登録順に分割され、重なって実行されることはない
// - 同一バッチ内のカメラは並行に撮影され、1台の失敗は他に波及しない
// - バッチ用ポート範囲は明示的な貸与/返却で管理し、二重貸与はしない
// - 照明・後始末の失敗はログのみで、リクエストの成否には影響しない
// - 全体タイムアウトを超えたリクエストは強制的に失敗へ遷移する
// - 終了状態に到達したリクエストの状態は以後変化しない
//
// # 前提要件
//   - カメラごとの取得スクリプト: トンネル確立・認証・画像取得を行う
//     外部実行ファイル。終了コード0が成功
//   - ssh: リモート後始末コマンドの実行に使用
package capture
