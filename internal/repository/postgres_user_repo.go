package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/reginald/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	var birthMonth, birthDay sql.NullInt16
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, notify_peers, birth_month, birth_day, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.NotifyPeers, &birthMonth, &birthDay, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	user.BirthMonth = nullInt16Ptr(birthMonth)
	user.BirthDay = nullInt16Ptr(birthDay)
	return user, nil
}

// InsertIfAbsent はユーザーが存在しない場合のみ作成する。
// 既存ユーザーのユーザー名や通知設定は上書きしない。
func (r *PostgresUserRepo) InsertIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, notify_peers, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Username, user.NotifyPeers, user.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateNotifyPeers はピア通知の受信設定を更新する。
func (r *PostgresUserRepo) UpdateNotifyPeers(ctx context.Context, id int64, notify bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET notify_peers = $2 WHERE id = $1`,
		id, notify,
	)
	if err != nil {
		return fmt.Errorf("failed to update notify_peers: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %d", id)
	}
	return nil
}

func nullInt16Ptr(v sql.NullInt16) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int16)
	return &n
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
