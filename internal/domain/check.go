package domain

import "time"

// CheckRun は1回の期限チェックの結果を表す。
type CheckRun struct {
	ID          string
	CheckedAt   time.Time
	WarnDays    int64
	TargetCount int
	Flagged     []ExpiringKey
}

// CheckResult はチェック結果と、判定に使ったインベントリの組。
// 期限延長はこのインベントリを使って主鍵ごとにまとめる。
type CheckResult struct {
	Run       *CheckRun
	Inventory *KeyInventory
}

// HasFlagged は警告対象の鍵が1本以上あるかを返す。
func (r *CheckRun) HasFlagged() bool {
	return len(r.Flagged) > 0
}
