package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TokenStore はアクセストークンの永続化インターフェース。
type TokenStore interface {
	// Load は保存されたトークンを返す。未保存の場合は空文字列を返す。
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// tokenFile はトークンファイルのJSONフォーマット。
type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// FileTokenStore はユーザー設定ディレクトリ配下のJSONファイルに
// トークンを保存するTokenStore実装。
type FileTokenStore struct {
	path string
}

var _ TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore はFileTokenStoreを生成する。
// appNameはユーザー設定ディレクトリ配下のサブディレクトリ名。
func NewFileTokenStore(appName string) (*FileTokenStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return &FileTokenStore{path: filepath.Join(dir, appName, "token.json")}, nil
}

// NewFileTokenStoreAt は明示的なファイルパスでFileTokenStoreを生成する。テスト用。
func NewFileTokenStoreAt(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		// 壊れたファイルは未保存として扱う
		return "", nil
	}
	return tf.AccessToken, nil
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.Marshal(tokenFile{AccessToken: token})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
