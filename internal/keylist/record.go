// Package keylist は gpg --with-colons --fixed-list-mode --list-keys の出力を
// 主鍵・副鍵の木構造に変換する。
//
// 列の意味は https://github.com/gpg/gnupg/blob/master/doc/DETAILS に従う。
// 列番号への依存は toRecord の1か所に閉じ込めている。
package keylist

import (
	"fmt"
	"strconv"
	"strings"

	"gpg-expire-warner/internal/domain"
)

// RecordType はレコード種別。
type RecordType int

const (
	// RecordOther は期限判定に使わないレコード（tru, uid, grp など）。
	RecordOther RecordType = iota
	// RecordPrimary は主鍵の行（pub）。
	RecordPrimary
	// RecordSubkey は副鍵の行（sub）。
	RecordSubkey
	// RecordFingerprint は直前の鍵のフィンガープリント行（fpr）。
	RecordFingerprint
)

func (t RecordType) String() string {
	switch t {
	case RecordPrimary:
		return "pub"
	case RecordSubkey:
		return "sub"
	case RecordFingerprint:
		return "fpr"
	default:
		return "other"
	}
}

const (
	fieldSeparator    = ":"
	expiresColumn     = 6
	fingerprintColumn = 9
)

var recordTags = map[string]RecordType{
	"pub": RecordPrimary,
	"sub": RecordSubkey,
	"fpr": RecordFingerprint,
}

// Record は名前付きフィールドに写像済みの1行分のレコード。
type Record struct {
	Line int
	Type RecordType
	// Expires は pub/sub 行の有効期限（Unix秒）。空欄はnil。
	Expires *int64
	// Fingerprint は fpr 行のフィンガープリント。
	Fingerprint domain.KeyID
}

// Tokenize は出力を行ごとに区切り、期限判定に必要な pub/sub/fpr 行のみを順序を保って返す。
// 必要な列が欠けている行や解釈できない値はエラーとする。
func Tokenize(output string) ([]Record, error) {
	var records []Record
	for i, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSuffix(line, "\r"), fieldSeparator)
		typ, ok := recordTags[fields[0]]
		if !ok {
			continue
		}
		rec, err := toRecord(i+1, typ, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// toRecord は列番号から名前付きフィールドへ写像する。
func toRecord(lineNo int, typ RecordType, fields []string) (Record, error) {
	rec := Record{Line: lineNo, Type: typ}

	switch typ {
	case RecordPrimary, RecordSubkey:
		if len(fields) <= expiresColumn {
			return Record{}, fmt.Errorf("%w: line %d: %s record has %d fields, need %d",
				domain.ErrMalformedRecord, lineNo, typ, len(fields), expiresColumn+1)
		}
		if raw := fields[expiresColumn]; raw != "" {
			expires, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("%w: line %d: expiry %q: %v",
					domain.ErrMalformedRecord, lineNo, raw, err)
			}
			rec.Expires = &expires
		}
	case RecordFingerprint:
		if len(fields) <= fingerprintColumn {
			return Record{}, fmt.Errorf("%w: line %d: fpr record has %d fields, need %d",
				domain.ErrMalformedRecord, lineNo, len(fields), fingerprintColumn+1)
		}
		fpr, err := domain.ParseKeyID(fields[fingerprintColumn])
		if err != nil {
			return Record{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rec.Fingerprint = fpr
	}

	return rec, nil
}
