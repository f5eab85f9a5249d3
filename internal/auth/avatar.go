package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authbridge/internal/security"
)

// avatarObjectName はミラー先の固定オブジェクト名。
// ユーザーごとに1枚だけ保持し、再サインイン時は上書きする。
const avatarObjectName = "avatar.jpg"

// BlobStore はBlob Storeの操作のうちアバターミラーが使うもの。
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error
	PublicURL(bucket, path string) string
}

// MirrorConfig はアバターミラーの設定。
type MirrorConfig struct {
	Bucket  string
	Timeout time.Duration
	MaxSize int64
}

// AvatarMirror は外部プロバイダーのアバター画像を自前のBlob Storeへ複製する。
// 取得はSSRFガード付きクライアントで行い、プライベートネットワークへの
// リクエストを拒否する。
type AvatarMirror struct {
	guard  security.SSRFGuardService
	blob   BlobStore
	config MirrorConfig
	logger *slog.Logger
}

// NewAvatarMirror はAvatarMirrorを生成する。
func NewAvatarMirror(guard security.SSRFGuardService, blob BlobStore, config MirrorConfig, logger *slog.Logger) *AvatarMirror {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 5 * 1024 * 1024
	}
	return &AvatarMirror{guard: guard, blob: blob, config: config, logger: logger}
}

// Mirror はsourceURLの画像を取得し、{userID}/avatar.jpg として上書き保存する。
// 保存後の公開URLを返す。取得先URLは事前に検証し、内部アドレスを拒否する。
func (m *AvatarMirror) Mirror(ctx context.Context, userID, sourceURL string) (string, error) {
	if err := m.guard.ValidateURL(sourceURL); err != nil {
		return "", fmt.Errorf("avatar source URL rejected: %w", err)
	}

	client := m.guard.NewSafeClient(m.config.Timeout, m.config.MaxSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create avatar request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.config.MaxSize))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar body: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("avatar response was empty")
	}

	path := userID + "/" + avatarObjectName
	if err := m.blob.Upload(ctx, m.config.Bucket, path, data, "image/jpeg", true); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	publicURL := m.blob.PublicURL(m.config.Bucket, path)
	m.logger.Info("avatar mirrored",
		slog.String("user_id", userID),
		slog.Int("size", len(data)),
	)

	return publicURL, nil
}

// compile-time interface check
var _ AvatarMirrorer = (*AvatarMirror)(nil)
