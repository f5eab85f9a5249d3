// Package upload は書類ファイルの保管とOCRスキャンの仲介を提供する。
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/ocr"
)

// maxFilenameLength は保存キーに使うファイル名の上限。
const maxFilenameLength = 100

// BlobStore はBlob Storeの操作のうちアップロードサービスが使うもの。
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error
	PublicURL(bucket, path string) string
}

// Scanner はOCRスキャンのインターフェース。テスト時にモックに差し替え可能。
type Scanner interface {
	Scan(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error)
}

// StoredFile は保存済みファイルの情報。
type StoredFile struct {
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
}

// Config はアップロードサービスの設定。
type Config struct {
	Bucket string
}

// Service は書類アップロードに関するビジネスロジックを提供する。
type Service struct {
	blob    BlobStore
	scanner Scanner
	config  Config
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(blob BlobStore, scanner Scanner, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{blob: blob, scanner: scanner, config: config, logger: logger}
}

// Store はユーザーの書類ファイルを保管し、保存先情報を返す。
// キーは {userID}/<ミリ秒タイムスタンプ>_<ファイル名> で衝突を避ける。
func (s *Service) Store(ctx context.Context, userID, filename, contentType string, data []byte) (*StoredFile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("アップロードデータが空です")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectPath := fmt.Sprintf("%s/%d_%s", userID, time.Now().UnixMilli(), sanitizeFilename(filename))

	if err := s.blob.Upload(ctx, s.config.Bucket, objectPath, data, contentType, false); err != nil {
		s.logger.Error("failed to store upload",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUploadFailedError("ファイルの保存に失敗しました")
	}

	s.logger.Info("document stored",
		slog.String("user_id", userID),
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)

	return &StoredFile{
		Path:      objectPath,
		PublicURL: s.blob.PublicURL(s.config.Bucket, objectPath),
	}, nil
}

// Scan は書類をOCRサービスへ転送し、抽出結果を返す。保管はしない。
func (s *Service) Scan(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error) {
	result, err := s.scanner.Scan(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return result, nil
}

// sanitizeFilename はパス区切りや空白を除去し、保存キーとして安全な名前に整える。
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "file"
	}
	if len(base) > maxFilenameLength {
		base = base[len(base)-maxFilenameLength:]
	}
	return base
}
