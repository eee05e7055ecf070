// Package server は、撮影APIのHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 撮影リクエストの受付と進捗配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 撮影リクエストの投入受付（検証エラーは同期的に返す）
//   - 進捗のポーリング応答とSSEによる購読配信
//   - 格納庫インベントリの読み取りエンドポイント
//
// 仕様:
//   - ルーティングとJSON応答はgin-gonic/ginを使用
//   - 進捗配信はServer-Sent Events（複数購読者の同時接続をサポート）
//   - グレースフルシャットダウンに対応
package server
