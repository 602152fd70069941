// Package migrations はチェック履歴テーブルのSQLマイグレーションを埋め込む。
// MySQLの既定設定では複数文を実行できないため、1ファイル1文とする。
package migrations

import "embed"

// FS はバージョン順に適用する *.sql ファイル。
//
//go:embed *.sql
var FS embed.FS
