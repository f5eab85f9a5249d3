// Package flow は複数ステップの外部書き込みシーケンスを宣言的に実行する。
//
// プロフィール確保やアバター差し替えのような「削除 → アップロード → 行更新」の
// 並びはトランザクションにできないため、各ステップに失敗時ポリシーを明示し、
// どの失敗が全体を中断し、どの失敗が許容孤児として続行するかをコードに残す。
package flow

import (
	"context"
	"fmt"
	"log/slog"
)

// FailurePolicy はステップ失敗時の扱いを表す。
type FailurePolicy int

const (
	// Abort は失敗時にシーケンス全体を中断する。
	Abort FailurePolicy = iota
	// Skip は失敗をログに残して次のステップへ続行する。
	// 孤児（古いblob等）が残ることを許容するステップに使う。
	Skip
)

// step は名前付きの1ステップ。
type step struct {
	name      string
	onFailure FailurePolicy
	run       func(ctx context.Context) error
}

// Sequence は順次実行するステップの列。ロールバックは行わない。
// ステップ間の状態はクロージャで受け渡す。
type Sequence struct {
	logger *slog.Logger
	steps  []step
}

// New はSequenceを生成する。loggerがnilの場合はslog.Defaultを使う。
func New(logger *slog.Logger) *Sequence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequence{logger: logger}
}

// Step はステップを追加する。追加順に実行される。
func (s *Sequence) Step(name string, onFailure FailurePolicy, run func(ctx context.Context) error) *Sequence {
	s.steps = append(s.steps, step{name: name, onFailure: onFailure, run: run})
	return s
}

// Run はステップを順に実行する。
// Abortステップの失敗はステップ名つきでラップして返す。
// Skipステップの失敗はWARNログを残して続行する。
func (s *Sequence) Run(ctx context.Context) error {
	for _, st := range s.steps {
		err := st.run(ctx)
		if err == nil {
			continue
		}

		if st.onFailure == Skip {
			s.logger.Warn("step failed, continuing",
				slog.String("step", st.name),
				slog.String("error", err.Error()),
			)
			continue
		}

		return fmt.Errorf("step %q failed: %w", st.name, err)
	}
	return nil
}
