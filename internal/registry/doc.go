// Package registry 格納庫とカメラの固定インベントリを提供する
//
// # 責務
// - 格納庫定義ファイル（フラットJSON）の読み込みと保持
// - 格納庫ごとの接続情報（SSHホスト・割当ドローン・照明設定）の提供
// - カメラID→IPアドレスの固定マップの提供
//
// # 仕様
// - 格納庫はファイル1つにつき1件、<データディレクトリ>/hangars/*.json に置く
// - カメラリストを持たない格納庫には標準の8台構成が適用される
// - 読み込み後はメモリ上のキャッシュから返す（Reloadで再読み込み）
// - 撮影コアから見て読み取り専用
package registry
