package domain

import "time"

// MigrationStatus は履歴テーブル用マイグレーションの適用状態。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はバイナリに埋め込まれたSQLマイグレーション1件。
type Migration struct {
	Version   string          // 例: "001"
	Name      string          // ファイル名から抽出
	Path      string          // 埋め込みFS内のパス
	AppliedAt *time.Time      // 未適用の場合はnil
	Status    MigrationStatus
}
