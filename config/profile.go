package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Profile はチェック対象を記述するTOMLファイルの内容。
//
//	warn_days = 14
//	keys = ["0123456789ABCDEF0123456789ABCDEF01234567"]
//	expire = "1y"
type Profile struct {
	WarnDays *int64   `toml:"warn_days,omitempty"`
	Keys     []string `toml:"keys,omitempty"`
	Expire   string   `toml:"expire,omitempty"`
}

// LocalProfilePath はカレントディレクトリのプロファイルパスを返す。
func LocalProfilePath() string {
	return ".gpg-expire-warner.toml"
}

// GlobalProfilePath はユーザー設定ディレクトリのプロファイルパスを返す。
func GlobalProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gpg-expire-warner", "config.toml"), nil
}

// LoadProfile はプロファイルを読み込む。
// pathが指定された場合はそのファイルのみを読み、存在しなければエラー。
// 未指定の場合はグローバル、ローカルの順に読み、ローカルの値で上書きする。どちらも無ければ空のProfile。
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	if path != "" {
		if err := p.mergeFile(path); err != nil {
			return nil, err
		}
		return p, nil
	}

	if globalPath, err := GlobalProfilePath(); err == nil {
		if err := p.mergeFile(globalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := p.mergeFile(LocalProfilePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return p, nil
}

func (p *Profile) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return nil
}
