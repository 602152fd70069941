package domain

import "errors"

var (
	// ErrInvalidKeyID はフィンガープリントの形式が不正な場合のエラー。
	ErrInvalidKeyID = errors.New("invalid key ID")

	// ErrInvalidWarnDays は警告日数が不正な場合のエラー。
	ErrInvalidWarnDays = errors.New("invalid warn days")

	// ErrMalformedRecord はgpg出力の行が必要な列を持たない場合のエラー。
	ErrMalformedRecord = errors.New("malformed gpg record")

	// ErrUnexpectedRecord はレコードの出現順序が文法に反する場合のエラー。
	ErrUnexpectedRecord = errors.New("unexpected gpg record")

	// ErrDanglingRecord は鍵の行に対応するfpr行が無いまま出力が終わった場合のエラー。
	ErrDanglingRecord = errors.New("dangling gpg record")

	// ErrGPGFailed はgpgの起動失敗または非ゼロ終了のエラー。
	ErrGPGFailed = errors.New("gpg command failed")

	// ErrInvalidEncoding はgpgの出力がUTF-8でない場合のエラー。
	ErrInvalidEncoding = errors.New("gpg output is not valid UTF-8")

	// ErrExtensionFailed は期限延長の呼び出しが失敗した場合のエラー。
	ErrExtensionFailed = errors.New("expiry extension failed")

	// ErrCheckNotFound は指定されたチェック履歴が存在しない場合のエラー。
	ErrCheckNotFound = errors.New("check run not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
