package usecase

import "gpg-expire-warner/internal/domain"

// SelectExpiring はインベントリを平坦化し、targetsに含まれ、かつ残り日数がwarnDays以下の鍵を返す。
// 結果の順序はインベントリ順（全主鍵、続いて各主鍵の副鍵）で、targetsの順序には依らない。
// 見つからない鍵・無期限の鍵・期間外の鍵は結果に含まれないだけでエラーにはならない。
func SelectExpiring(inv *domain.KeyInventory, targets domain.KeyIDSet, now, warnDays int64) []domain.ExpiringKey {
	var expiring []domain.ExpiringKey
	for _, k := range inv.Flatten() {
		if !targets.Contains(k.Status.Fingerprint) {
			continue
		}
		days, ok := k.Status.ExpireDays(now)
		if !ok || days > warnDays {
			continue
		}
		expiring = append(expiring, domain.ExpiringKey{
			Fingerprint: k.Status.Fingerprint,
			Primary:     k.Primary,
			Days:        days,
		})
	}
	return expiring
}

// PlanExtensions は警告対象の鍵を主鍵ごとにまとめ、gpg呼び出しの一覧を作る。
// 主鍵自身が対象なら主鍵のみの呼び出しを1回、副鍵が対象ならその副鍵をまとめた呼び出しを1回、
// インベントリ順に並べる。
func PlanExtensions(inv *domain.KeyInventory, flagged []domain.ExpiringKey) []domain.ExtensionRequest {
	flaggedSet := make(domain.KeyIDSet, len(flagged))
	for _, k := range flagged {
		flaggedSet[k.Fingerprint] = struct{}{}
	}

	var plan []domain.ExtensionRequest
	for _, mk := range inv.MainKeys {
		primary := mk.Status.Fingerprint
		if flaggedSet.Contains(primary) {
			plan = append(plan, domain.ExtensionRequest{Primary: primary})
		}

		var subkeys []domain.KeyID
		for _, sk := range mk.Subkeys {
			if flaggedSet.Contains(sk.Fingerprint) {
				subkeys = append(subkeys, sk.Fingerprint)
			}
		}
		if len(subkeys) > 0 {
			plan = append(plan, domain.ExtensionRequest{Primary: primary, Subkeys: subkeys})
		}
	}
	return plan
}
