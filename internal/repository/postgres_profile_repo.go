package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/authbridge/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反エラーコード。
const uniqueViolation = "23505"

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile := &model.Profile{}
	var fullName, username, avatarURL, phone, address sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, username, avatar_url, phone, address, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&profile.ID, &fullName, &username, &avatarURL, &phone, &address, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	profile.FullName = fullName.String
	profile.Username = username.String
	profile.AvatarURL = avatarURL.String
	profile.Phone = phone.String
	profile.Address = address.String
	if updatedAt.Valid {
		profile.UpdatedAt = updatedAt.Time
	}

	return profile, nil
}

// Create はプロフィールを作成する。
// 同一IDの行が既に存在する場合はmodel.ErrProfileExistsを返す。
// 初回サインインの同時リクエストはこのエラーで冪等に処理できる。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, username, avatar_url, phone, address, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.FullName, profile.Username, profile.AvatarURL,
		profile.Phone, profile.Address, time.Now(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.ErrProfileExists
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

// Upsert はプロフィールを作成または更新する。
// avatar_urlが空文字の場合、既存行のavatar_urlをそのまま保持する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, username, avatar_url, phone, address, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   username = EXCLUDED.username,
		   avatar_url = CASE WHEN EXCLUDED.avatar_url = '' THEN profiles.avatar_url ELSE EXCLUDED.avatar_url END,
		   phone = EXCLUDED.phone,
		   address = EXCLUDED.address,
		   updated_at = EXCLUDED.updated_at`,
		profile.ID, profile.FullName, profile.Username, profile.AvatarURL,
		profile.Phone, profile.Address, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// ListIDs は全プロフィールのIDを返す。
func (r *PostgresProfileRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan profile ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile IDs: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
