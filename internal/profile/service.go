// Package profile はプロフィールの閲覧と更新を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/authbridge/internal/blob"
	"github.com/hitoshi/authbridge/internal/flow"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/repository"
	"github.com/hitoshi/authbridge/internal/security"
)

// BlobStore はBlob Storeの操作のうちプロフィールサービスが使うもの。
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error
	List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error)
	Remove(ctx context.Context, bucket string, paths []string) error
	PublicURL(bucket, path string) string
}

// ObjectInfo はBlob Storeのオブジェクトメタデータ。
type ObjectInfo = blob.ObjectInfo

// AvatarUpload は更新リクエストに含まれるアバター画像。
type AvatarUpload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// UpdateInput はプロフィール更新の入力。
// Avatarがnilの場合、既存のアバターは維持される。
type UpdateInput struct {
	FullName string
	Username string
	Phone    string
	Address  string
	Avatar   *AvatarUpload
}

// Config はプロフィールサービスの設定。
type Config struct {
	AvatarBucket     string
	DefaultAvatarURL string
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	repo      repository.ProfileRepository
	blob      BlobStore
	sanitizer security.FieldSanitizerService
	config    Config
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	repo repository.ProfileRepository,
	blob BlobStore,
	sanitizer security.FieldSanitizerService,
	config Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		blob:      blob,
		sanitizer: sanitizer,
		config:    config,
		logger:    logger,
	}
}

// Get はプロフィール行とIdentity Backendのユーザー情報をマージしたビューを返す。
// 行が存在しなくてもエラーにはせず、Identity側の情報で埋める。
// emailは常にIdentity側から取り、avatar_urlは
// プロフィール行 → プロバイダーメタデータ → 既定URL の順で解決する。
func (s *Service) Get(ctx context.Context, user *model.UserIdentity) (*model.ProfileView, error) {
	row, err := s.repo.FindByID(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to load profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}

	view := &model.ProfileView{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
	}

	if row != nil {
		if row.FullName != "" {
			view.FullName = row.FullName
		}
		view.Username = row.Username
		view.Phone = row.Phone
		view.Address = row.Address
	}

	view.AvatarURL = s.resolveAvatarURL(row, user)

	return view, nil
}

// Update はプロフィールを更新する。
// アバター画像が含まれる場合は旧画像を削除してから新キーで保存する。
// 旧画像の削除失敗は更新を妨げない。スカラー項目のみの更新では
// 既存のavatar_urlを保持する。
func (s *Service) Update(ctx context.Context, user *model.UserIdentity, input UpdateInput) (*model.ProfileView, error) {
	avatarURL := ""

	seq := flow.New(s.logger)

	if input.Avatar != nil {
		objectName := avatarObjectName(input.Avatar.Filename)
		objectPath := user.ID + "/" + objectName

		seq.Step("remove_old_avatars", flow.Skip, func(ctx context.Context) error {
			objects, err := s.blob.List(ctx, s.config.AvatarBucket, user.ID, 100)
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(objects))
			for _, obj := range objects {
				paths = append(paths, user.ID+"/"+obj.Name)
			}
			return s.blob.Remove(ctx, s.config.AvatarBucket, paths)
		})

		seq.Step("upload_avatar", flow.Abort, func(ctx context.Context) error {
			contentType := input.Avatar.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if err := s.blob.Upload(ctx, s.config.AvatarBucket, objectPath, input.Avatar.Data, contentType, false); err != nil {
				s.logger.Error("failed to upload avatar",
					slog.String("user_id", user.ID),
					slog.String("error", err.Error()),
				)
				return model.NewUploadFailedError("アバター画像の保存に失敗しました")
			}
			avatarURL = s.blob.PublicURL(s.config.AvatarBucket, objectPath)
			return nil
		})
	}

	seq.Step("upsert_profile", flow.Abort, func(ctx context.Context) error {
		profile := &model.Profile{
			ID:        user.ID,
			FullName:  s.sanitizer.Sanitize(input.FullName),
			Username:  s.sanitizer.Sanitize(input.Username),
			Phone:     s.sanitizer.Sanitize(input.Phone),
			Address:   s.sanitizer.Sanitize(input.Address),
			AvatarURL: avatarURL, // 空文字なら既存値が保持される
		}
		if err := s.repo.Upsert(ctx, profile); err != nil {
			s.logger.Error("failed to upsert profile",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return model.NewStoreUnavailableError()
		}
		return nil
	})

	if err := seq.Run(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("profile updated",
		slog.String("user_id", user.ID),
		slog.Bool("avatar_changed", input.Avatar != nil),
	)

	return s.Get(ctx, user)
}

// resolveAvatarURL はアバターURLを プロフィール行 → プロバイダー → 既定URL の
// 優先順位で解決する。
func (s *Service) resolveAvatarURL(row *model.Profile, user *model.UserIdentity) string {
	if row != nil && row.AvatarURL != "" {
		return row.AvatarURL
	}
	if user.AvatarURL != "" {
		return user.AvatarURL
	}
	return s.config.DefaultAvatarURL
}

// avatarObjectName は衝突しないアバターのオブジェクト名を生成する。
// 拡張子は元ファイル名から引き継ぐ。
func avatarObjectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("avatar_%d%s", time.Now().UnixMilli(), ext)
}
