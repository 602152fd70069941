// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// SecondsPerDay は1日の秒数。
const SecondsPerDay = 86400

// KeyStatus は主鍵または副鍵1本分の状態を表す。
type KeyStatus struct {
	Fingerprint KeyID
	// Expires は有効期限（Unix秒）。nilは無期限を表す。
	Expires *int64
}

// ExpireDays はnowから有効期限までの日数を返す。
// 0方向への切り捨てなので、1秒だけ期限切れの鍵は -1 ではなく 0 になる。
// 無期限の場合は ok=false。
func (s KeyStatus) ExpireDays(now int64) (days int64, ok bool) {
	if s.Expires == nil {
		return 0, false
	}
	return (*s.Expires - now) / SecondsPerDay, true
}

// ExpiresAt は有効期限をtime.Timeで返す。無期限の場合はnil。
func (s KeyStatus) ExpiresAt() *time.Time {
	if s.Expires == nil {
		return nil
	}
	t := time.Unix(*s.Expires, 0).UTC()
	return &t
}

// MainKeyStatus は主鍵とその副鍵群を表す。副鍵はgpgの出力順に並ぶ。
type MainKeyStatus struct {
	Status  KeyStatus
	Subkeys []KeyStatus
}

// KeyInventory はgpgが報告した主鍵の一覧。1回の実行で1度だけ構築され、以後は読み取り専用。
type KeyInventory struct {
	MainKeys []MainKeyStatus
}

// FlatKey は平坦化した鍵と、それを所有する主鍵の組。
type FlatKey struct {
	Status  KeyStatus
	Primary KeyID
}

// Flatten は全主鍵を先に、続いて各主鍵の副鍵を出現順に並べた一覧を返す。
func (inv *KeyInventory) Flatten() []FlatKey {
	var flat []FlatKey
	for _, mk := range inv.MainKeys {
		flat = append(flat, FlatKey{Status: mk.Status, Primary: mk.Status.Fingerprint})
	}
	for _, mk := range inv.MainKeys {
		for _, sk := range mk.Subkeys {
			flat = append(flat, FlatKey{Status: sk, Primary: mk.Status.Fingerprint})
		}
	}
	return flat
}

// Fingerprints はインベントリ内の全フィンガープリントを平坦化順で返す。
func (inv *KeyInventory) Fingerprints() []KeyID {
	flat := inv.Flatten()
	ids := make([]KeyID, len(flat))
	for i, k := range flat {
		ids[i] = k.Status.Fingerprint
	}
	return ids
}

// ExpiringKey は警告対象と判定された鍵。
type ExpiringKey struct {
	Fingerprint KeyID
	Primary     KeyID
	Days        int64
}

// ExtensionRequest はgpg --quick-set-expire 1回分の呼び出し内容。
// Subkeysが空の場合は主鍵自身の期限を更新する。
type ExtensionRequest struct {
	Primary KeyID
	Subkeys []KeyID
}

// IsPrimary は主鍵自身を対象とするリクエストかを返す。
func (r ExtensionRequest) IsPrimary() bool {
	return len(r.Subkeys) == 0
}
