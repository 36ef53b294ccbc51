package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bunny-plus/backend/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB

	// now はテストで時刻を固定するためのフック。nilの場合はtime.Nowを使用する。
	now func() time.Time
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

func (r *PostgresSessionRepo) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, discord_id, username, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.DiscordID, session.Username, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。
// 期限切れのセッションは副作用として削除し、存在しないものとして扱う。
// 1回のlookup内で「見つかったが期限切れ」を返すことはない。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, discord_id, username, created_at, expires_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.DiscordID, &session.Username, &session.CreatedAt, &session.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if !session.Valid(r.clock()) {
		// 遅延削除。削除に失敗しても期限切れセッションを有効として返すことはない。
		if err := r.DeleteByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
// 存在しないIDに対しても冪等に成功する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
// FindByIDの遅延削除とは独立した定期スイープとして実行される。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
