package domain

import "fmt"

// KeyIDLength はフィンガープリントの文字数。
const KeyIDLength = 40

// KeyID は40文字の大文字16進数で表される鍵のフィンガープリント。
// 表示用文字列とgpgへの引数は同一の表現を使う。
type KeyID string

// ParseKeyID は文字列を検証してKeyIDを生成する。
// 大文字小文字の変換や空白の除去は行わない。
func ParseKeyID(s string) (KeyID, error) {
	if len(s) != KeyIDLength {
		return "", fmt.Errorf("%w: %q must be exactly %d uppercase hex characters", ErrInvalidKeyID, s, KeyIDLength)
	}
	for i := 0; i < len(s); i++ {
		if !isKeyIDChar(s[i]) {
			return "", fmt.Errorf("%w: %q must be exactly %d uppercase hex characters", ErrInvalidKeyID, s, KeyIDLength)
		}
	}
	return KeyID(s), nil
}

// ParseKeyIDs は複数の文字列をまとめて検証する。最初の不正な値でエラーを返す。
// 入力が空の場合は nil を返す。
func ParseKeyIDs(ss []string) ([]KeyID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	ids := make([]KeyID, 0, len(ss))
	for _, s := range ss {
		id, err := ParseKeyID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func isKeyIDChar(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

// String はフィンガープリントを文字列として返す。
func (id KeyID) String() string {
	return string(id)
}

// KeyIDSet はKeyIDの集合。
type KeyIDSet map[KeyID]struct{}

// NewKeyIDSet はKeyIDのスライスから集合を生成する。
func NewKeyIDSet(ids []KeyID) KeyIDSet {
	set := make(KeyIDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains は集合にidが含まれるかを返す。
func (s KeyIDSet) Contains(id KeyID) bool {
	_, ok := s[id]
	return ok
}
