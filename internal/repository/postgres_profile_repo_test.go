package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/authbridge/internal/model"
)

// PostgresProfileRepoはProfileRepositoryインターフェースを満たすことを検証
func TestPostgresProfileRepo_ImplementsInterface(t *testing.T) {
	var _ ProfileRepository = (*PostgresProfileRepo)(nil)
}

// NewPostgresProfileRepoが正しく初期化されることを検証
func TestNewPostgresProfileRepo_Initializes(t *testing.T) {
	repo := NewPostgresProfileRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 一意制約違反がErrProfileExistsに変換されるロジックの検証
// （DB接続なしでエラー変換のみ検証）
func TestUniqueViolationCode_MatchesPostgres(t *testing.T) {
	pqErr := &pq.Error{Code: pq.ErrorCode(uniqueViolation)}

	var target *pq.Error
	if !errors.As(error(pqErr), &target) {
		t.Fatal("expected errors.As to match pq.Error")
	}
	if string(target.Code) != "23505" {
		t.Errorf("expected code 23505, got %s", target.Code)
	}
}

// ErrProfileExistsがerrors.Isで判定可能なセンチネルであることを検証
func TestErrProfileExists_IsSentinel(t *testing.T) {
	wrapped := errors.Join(model.ErrProfileExists)
	if !errors.Is(wrapped, model.ErrProfileExists) {
		t.Error("expected wrapped error to match sentinel")
	}
}
