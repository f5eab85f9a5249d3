// Package cleanup はBlob Storeに残った古いアバターオブジェクトの削除ジョブを提供する。
// アバター差し替えは都度新しいオブジェクト名で保存されるため、
// プロフィール行が参照しなくなったオブジェクトが溜まっていく。
// 日次バッチで各ユーザーのプレフィックス配下を走査し、参照外のオブジェクトを削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/authbridge/internal/blob"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/repository"
)

// mirrorObjectName はプロバイダーアバターのミラー先オブジェクト名。
// 初回サインイン時に作成されるため、参照の有無に関わらず削除対象にしない。
const mirrorObjectName = "avatar.jpg"

// listLimit は1ユーザーあたりのオブジェクト一覧の上限。
const listLimit = 100

// BlobStore はクリーンアップジョブが必要とするBlob Store操作のインターフェース。
type BlobStore interface {
	List(ctx context.Context, bucket, prefix string, limit int) ([]blob.ObjectInfo, error)
	Remove(ctx context.Context, bucket string, paths []string) error
}

// CleanupRecorder は削除件数のメトリクス記録に必要なインターフェース。
type CleanupRecorder interface {
	RecordCleanupRemoved(count int)
}

// Job は参照されなくなったアバターオブジェクトの削除ジョブ。
// 冪等で、途中のユーザーで失敗しても残りのユーザーの処理を継続する。
type Job struct {
	repo     repository.ProfileRepository
	blob     BlobStore
	recorder CleanupRecorder
	logger   *slog.Logger
	Bucket   string
}

// NewJob は新しいJobを生成する。
func NewJob(repo repository.ProfileRepository, blobStore BlobStore, recorder CleanupRecorder, logger *slog.Logger, bucket string) *Job {
	return &Job{
		repo:     repo,
		blob:     blobStore,
		recorder: recorder,
		logger:   logger,
		Bucket:   bucket,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("アバタークリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.String("bucket", j.Bucket),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("アバタークリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("アバタークリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("アバタークリーンアップの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全ユーザーのアバタープレフィックスを1回走査し、
// プロフィール行が参照していないオブジェクトを削除する。
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()

	ids, err := j.repo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("プロフィールID一覧の取得に失敗: %w", err)
	}

	totalRemoved := 0
	for _, id := range ids {
		removed, err := j.sweepUser(ctx, id)
		if err != nil {
			// 1ユーザーの失敗で全体を止めない
			j.logger.Warn("ユーザーのアバター走査に失敗しました",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		totalRemoved += removed
	}

	if j.recorder != nil && totalRemoved > 0 {
		j.recorder.RecordCleanupRemoved(totalRemoved)
	}

	j.logger.Info("アバタークリーンアップが完了しました",
		slog.Int("users", len(ids)),
		slog.Int("removed", totalRemoved),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// sweepUser は1ユーザーのプレフィックス配下を走査し、参照外オブジェクトを削除する。
func (j *Job) sweepUser(ctx context.Context, userID string) (int, error) {
	profile, err := j.repo.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	objects, err := j.blob.List(ctx, j.Bucket, userID, listLimit)
	if err != nil {
		return 0, err
	}

	current := currentObjectName(profile)

	var stale []string
	for _, obj := range objects {
		if obj.Name == current || obj.Name == mirrorObjectName {
			continue
		}
		stale = append(stale, userID+"/"+obj.Name)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	if err := j.blob.Remove(ctx, j.Bucket, stale); err != nil {
		return 0, err
	}

	j.logger.Info("参照外のアバターオブジェクトを削除しました",
		slog.String("user_id", userID),
		slog.Int("count", len(stale)),
	)

	return len(stale), nil
}

// currentObjectName はプロフィール行のavatar_urlが指すオブジェクト名を返す。
// 外部URL（プロバイダー直URL等）や空の場合は空文字を返す。
func currentObjectName(profile *model.Profile) string {
	if profile == nil || profile.AvatarURL == "" {
		return ""
	}
	idx := strings.LastIndex(profile.AvatarURL, "/")
	if idx < 0 || idx == len(profile.AvatarURL)-1 {
		return ""
	}
	return profile.AvatarURL[idx+1:]
}
