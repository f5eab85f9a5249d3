// Package auth はIdentity Backendを介した認証フローと
// 初回サインイン時のプロフィール保証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/authbridge/internal/flow"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/repository"
)

// Credential は認証リクエストの資格情報を表すタグ付きユニオン。
// 実装はこのパッケージの3型に限定され、SignInが種別ごとに
// 適切なグラントへ振り分ける。
type Credential interface {
	credentialKind() string
}

// PasswordCredential はメールアドレスとパスワードによる資格情報。
type PasswordCredential struct {
	Email    string
	Password string
}

func (PasswordCredential) credentialKind() string { return "password" }

// IDTokenCredential はフェデレーテッドIDトークンによる資格情報。
// NonceはIDトークン取得時に使ったnonceの生値。
type IDTokenCredential struct {
	Provider string
	IDToken  string
	Nonce    string
}

func (IDTokenCredential) credentialKind() string { return "id_token" }

// AuthCodeCredential はOAuthコールバックで受け取った認可コードによる資格情報。
type AuthCodeCredential struct {
	Code string
}

func (AuthCodeCredential) credentialKind() string { return "auth_code" }

// IdentityClient はIdentity Backendの操作のうち認証サービスが使うもの。
type IdentityClient interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.UserIdentity, error)
	SignInPassword(ctx context.Context, email, password string) (*model.UserIdentity, *model.Session, error)
	SignInIDToken(ctx context.Context, provider, idToken, nonce string) (*model.UserIdentity, *model.Session, error)
	ExchangeCode(ctx context.Context, code string) (*model.UserIdentity, *model.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo string) string
}

// AvatarMirrorer はプロバイダーのアバター画像を自前ストレージへ複製する。
type AvatarMirrorer interface {
	// Mirror はsourceURLの画像を取得してユーザーのアバターとして保存し、
	// 公開URLを返す。
	Mirror(ctx context.Context, userID, sourceURL string) (string, error)
}

// MirrorFailureRecorder はアバター複製失敗のメトリクス記録に必要なインターフェース。
type MirrorFailureRecorder interface {
	RecordAvatarMirrorFailure()
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	identity    IdentityClient
	profileRepo repository.ProfileRepository
	mirror      AvatarMirrorer
	recorder    MirrorFailureRecorder // nil可
	logger      *slog.Logger
}

// NewService はServiceを生成する。recorderはnil可。
func NewService(
	identity IdentityClient,
	profileRepo repository.ProfileRepository,
	mirror AvatarMirrorer,
	recorder MirrorFailureRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identity:    identity,
		profileRepo: profileRepo,
		mirror:      mirror,
		recorder:    recorder,
		logger:      logger,
	}
}

// SignUp は新規ユーザーを登録する。セッションは発行しない。
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*model.UserIdentity, error) {
	if email == "" || password == "" {
		return nil, model.NewInvalidInputError("email、passwordは必須です")
	}

	metadata := map[string]any{}
	if fullName != "" {
		metadata["full_name"] = fullName
	}

	user, err := s.identity.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID))
	return user, nil
}

// SignIn は資格情報の種別に応じたグラントでセッションを発行する。
// フェデレーテッドなIDトークンサインインでは、初回に限りプロフィール行を
// 自動作成する（EnsureProfile）。認可コード交換ではプロフィール保証を
// 呼び出し元（OAuthコールバックハンドラー）に委ねる。
func (s *Service) SignIn(ctx context.Context, cred Credential) (*model.UserIdentity, *model.Session, error) {
	switch c := cred.(type) {
	case PasswordCredential:
		if c.Email == "" || c.Password == "" {
			return nil, nil, model.NewInvalidInputError("email、passwordは必須です")
		}
		return s.identity.SignInPassword(ctx, c.Email, c.Password)

	case IDTokenCredential:
		if c.IDToken == "" {
			return nil, nil, model.NewMissingTokenError()
		}
		user, session, err := s.identity.SignInIDToken(ctx, c.Provider, c.IDToken, c.Nonce)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureProfile(ctx, user); err != nil {
			// プロフィール行のないユーザーを作らないため、作成失敗はサインイン失敗とする
			s.logger.Error("failed to ensure profile",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return nil, nil, err
		}
		return user, session, nil

	case AuthCodeCredential:
		if c.Code == "" {
			return nil, nil, model.NewMissingCodeError()
		}
		return s.identity.ExchangeCode(ctx, c.Code)

	default:
		return nil, nil, fmt.Errorf("unsupported credential type %T", cred)
	}
}

// SignOut はプロバイダー側のセッションを失効させる。
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return model.NewMissingTokenError()
	}
	if err := s.identity.SignOut(ctx, accessToken); err != nil {
		return err
	}
	s.logger.Info("user signed out")
	return nil
}

// AuthorizeURL はOAuth同意画面へのリダイレクトURLを返す。
func (s *Service) AuthorizeURL(provider, redirectTo string) string {
	return s.identity.AuthorizeURL(provider, redirectTo)
}

// EnsureProfile はユーザーのプロフィール行が存在することを保証する。
// 既存行があれば何もしない。なければアバターの複製を試みてから行を作成する。
// アバター複製の失敗はスキップし、プロバイダーのURLのまま作成を続行する。
// 同時リクエストによる一意制約違反は成功として扱う。
func (s *Service) EnsureProfile(ctx context.Context, user *model.UserIdentity) error {
	existing, err := s.profileRepo.FindByID(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to look up profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return model.NewProfileLookupFailedError()
	}
	if existing != nil {
		return nil
	}

	// 複製に失敗した場合はプロバイダーのURLをそのまま保存する
	avatarURL := user.AvatarURL

	seq := flow.New(s.logger).
		Step("mirror_avatar", flow.Skip, func(ctx context.Context) error {
			if user.AvatarURL == "" || s.mirror == nil {
				return nil
			}
			mirrored, err := s.mirror.Mirror(ctx, user.ID, user.AvatarURL)
			if err != nil {
				if s.recorder != nil {
					s.recorder.RecordAvatarMirrorFailure()
				}
				return err
			}
			avatarURL = mirrored
			return nil
		}).
		Step("create_profile", flow.Abort, func(ctx context.Context) error {
			profile := &model.Profile{
				ID:        user.ID,
				FullName:  user.FullName,
				Username:  usernameFromEmail(user.Email),
				AvatarURL: avatarURL,
			}
			err := s.profileRepo.Create(ctx, profile)
			if err == nil {
				return nil
			}
			if errors.Is(err, model.ErrProfileExists) {
				// 同時リクエストが先に作成した。冪等に成功扱い
				return nil
			}
			s.logger.Error("failed to create profile",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return model.NewProfileCreateFailedError()
		})

	if err := seq.Run(ctx); err != nil {
		return err
	}

	s.logger.Info("profile ensured", slog.String("user_id", user.ID))
	return nil
}

// usernameFromEmail はメールアドレスのローカル部をユーザー名にする。
func usernameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
