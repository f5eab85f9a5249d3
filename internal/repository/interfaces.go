// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authbridge/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	// 同一IDの行が既に存在する場合はmodel.ErrProfileExistsを返す。
	Create(ctx context.Context, profile *model.Profile) error

	// Upsert はプロフィールを作成または更新する。
	// avatar_urlが空の場合、既存行のavatar_urlは保持される。
	Upsert(ctx context.Context, profile *model.Profile) error

	// ListIDs は全プロフィールのIDを返す。クリーンアップワーカーが使用する。
	ListIDs(ctx context.Context) ([]string, error)
}
