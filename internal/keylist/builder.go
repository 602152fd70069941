package keylist

import (
	"fmt"

	"gpg-expire-warner/internal/domain"
)

type state int

const (
	awaitingPrimary state = iota
	awaitingPrimaryFingerprint
	awaitingSubkeyOrPrimary
	awaitingSubkeyFingerprint
)

func (s state) String() string {
	switch s {
	case awaitingPrimary:
		return "AwaitingPrimary"
	case awaitingPrimaryFingerprint:
		return "AwaitingPrimaryFingerprint"
	case awaitingSubkeyOrPrimary:
		return "AwaitingSubordinateOrPrimary"
	case awaitingSubkeyFingerprint:
		return "AwaitingSubordinateFingerprint"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Builder はレコードを1件ずつ受け取り、主鍵ごとのブロックにまとめる状態機械。
// 鍵の行は必ず直後の fpr 行と対になり、副鍵は直近に開いた主鍵に属する。
type Builder struct {
	state    state
	pending  *int64
	pendLine int
	current  *domain.MainKeyStatus
	mainKeys []domain.MainKeyStatus
}

// NewBuilder は空のBuilderを生成する。
func NewBuilder() *Builder {
	return &Builder{state: awaitingPrimary}
}

// Push はレコードを1件投入する。文法に反する場合はエラーを返し、以後のBuilderは使えない。
func (b *Builder) Push(rec Record) error {
	switch b.state {
	case awaitingPrimary:
		if rec.Type != RecordPrimary {
			return b.unexpected(rec)
		}
		b.openKey(rec)
		b.state = awaitingPrimaryFingerprint

	case awaitingPrimaryFingerprint:
		if rec.Type != RecordFingerprint {
			return b.unexpected(rec)
		}
		b.current = &domain.MainKeyStatus{
			Status: domain.KeyStatus{Fingerprint: rec.Fingerprint, Expires: b.pending},
		}
		b.state = awaitingSubkeyOrPrimary

	case awaitingSubkeyOrPrimary:
		switch rec.Type {
		case RecordPrimary:
			b.closeMainKey()
			b.openKey(rec)
			b.state = awaitingPrimaryFingerprint
		case RecordSubkey:
			b.openKey(rec)
			b.state = awaitingSubkeyFingerprint
		default:
			return b.unexpected(rec)
		}

	case awaitingSubkeyFingerprint:
		if rec.Type != RecordFingerprint {
			return b.unexpected(rec)
		}
		b.current.Subkeys = append(b.current.Subkeys, domain.KeyStatus{
			Fingerprint: rec.Fingerprint,
			Expires:     b.pending,
		})
		b.state = awaitingSubkeyOrPrimary
	}
	return nil
}

// Finish は入力の終端を通知し、構築済みのインベントリを返す。
// 鍵の行に対応する fpr 行が無いまま終わった場合はエラー。
func (b *Builder) Finish() (*domain.KeyInventory, error) {
	switch b.state {
	case awaitingPrimaryFingerprint, awaitingSubkeyFingerprint:
		return nil, fmt.Errorf("%w: line %d: key record without fingerprint at end of output",
			domain.ErrDanglingRecord, b.pendLine)
	case awaitingSubkeyOrPrimary:
		b.closeMainKey()
	}
	return &domain.KeyInventory{MainKeys: b.mainKeys}, nil
}

func (b *Builder) openKey(rec Record) {
	b.pending = rec.Expires
	b.pendLine = rec.Line
}

func (b *Builder) closeMainKey() {
	if b.current != nil {
		b.mainKeys = append(b.mainKeys, *b.current)
		b.current = nil
	}
}

func (b *Builder) unexpected(rec Record) error {
	return fmt.Errorf("%w: line %d: %s record in state %s",
		domain.ErrUnexpectedRecord, rec.Line, rec.Type, b.state)
}

// Parse はgpgの出力全体からインベントリを構築する。途中で失敗した場合、部分的な結果は返さない。
func Parse(output string) (*domain.KeyInventory, error) {
	records, err := Tokenize(output)
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	for _, rec := range records {
		if err := b.Push(rec); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}
